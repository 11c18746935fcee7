// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

type Id int

const (
	StageFileNotFoundId Id = iota + 1
	AmbiguousStageFileId
	MalformedStageTokenId
	InvalidConfigValueId
	ConfigLoadFailedId
	ContainerEngineNotFoundId
	BuildFailedId
	ImageNotFoundId
	BootcNotFoundId
	PermissionDeniedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink
	extLinks []HttpLink // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
		for _, link := range i.extLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	stageFileNotFoundIssue = &Issue{
		id: StageFileNotFoundId,
		mdMsg: `
# Stage definition not found!

Every stage group needs exactly one file named ` + "`Definition.<group>`" + ` somewhere
under the source directory.

## Search order
1. ` + "`<src-dir>/Definition.<group>`" + `
2. ` + "`<src-dir>/**/Definition.<group>`" + ` (any depth)

## Things you can try:
- Check the spelling of the group in ` + "`--rootfs-stages`" + ` / ` + "`--builder-stages`" + `
- Look for stray commas, an empty token is never a valid group
- Point trls at the right tree:
~~~
$ trls --src-dir /path/to/stages build
~~~`,
	}

	ambiguousStageFileIssue = &Issue{
		id: AmbiguousStageFileId,
		mdMsg: `
# More than one stage definition matches!

trls refuses to guess which ` + "`Definition.<group>`" + ` to build when several files
share the same name inside the source directory.

## Things you can try:
- Rename or delete the duplicates listed in the error message
- Keep shared stages in one place and reference them by group name`,
	}

	malformedStageTokenIssue = &Issue{
		id: MalformedStageTokenId,
		mdMsg: `
# Malformed stage token!

Stage lists are comma-separated tokens of the form ` + "`group`" + ` or ` + "`group:stage`" + `.

## Examples
~~~
--rootfs-stages base,multi:stage1,multi:stage2
~~~

## Things you can try:
- Use at most one ` + "`:`" + ` per token
- Make sure neither side of ` + "`:`" + ` is empty`,
	}

	invalidConfigValueIssue = &Issue{
		id: InvalidConfigValueId,
		mdMsg: `
# Invalid configuration value!

Boolean options accept exactly ` + "`0`, `1`, `true`, `false`, `yes`, `no`" + ` (lower case).
Extra build contexts use the form ` + "`name=path`" + `.

## Things you can try:
- Inspect the effective configuration:
~~~
$ trls config show
~~~`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

trls reads ` + "`/etc/trellis/trellis.toml`" + ` unless ` + "`--config`" + ` or
` + "`TRELLIS_CONFIG`" + ` point somewhere else.

## Things you can try:
- Check the TOML syntax of the file
- Only ` + "`[build]`" + ` and ` + "`[environment]`" + ` sections are recognized
- Print the path trls is using:
~~~
$ trls config path
~~~`,
	}

	containerEngineNotFoundIssue = &Issue{
		id: ContainerEngineNotFoundId,
		mdMsg: `
# Podman not found!

trls delegates every image build to podman.

## Things you can try:
- Install podman with your distribution's package manager
- Make sure ` + "`podman`" + ` is on your PATH
- Verify it works:
~~~
$ podman version
~~~`,
	}

	buildFailedIssue = &Issue{
		id: BuildFailedId,
		mdMsg: `
# Stage build failed!

podman exited with a non-zero status. Stages after the failing one were not built;
images produced by earlier stages are kept.

## Things you can try:
- Re-run without ` + "`--quiet`" + ` to see the full podman output
- Build only the failing stage by trimming the stage list
- Enable the layer cache to speed up iterations:
~~~
$ trls --podman-build-cache true build
~~~`,
	}

	imageNotFoundIssue = &Issue{
		id: ImageNotFoundId,
		mdMsg: `
# Rootfs image not found!

` + "`trls run`" + ` starts a container from the final rootfs image, which has not been built yet.

## Things you can try:
~~~
$ trls build
~~~`,
	}

	bootcNotFoundIssue = &Issue{
		id: BootcNotFoundId,
		mdMsg: `
# bootc not available!

` + "`trls update`" + ` hands the freshly built image to ` + "`bootc upgrade`" + `.

## Things you can try:
- Run ` + "`trls update`" + ` on a bootc-managed host
- Use ` + "`trls build`" + ` if you only need the image`,
		extLinks: []HttpLink{"https://bootc-dev.github.io/bootc/"},
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

trls needs write access to its cache directories and, for most builds, root
privileges for podman.

## Things you can try:
- Run trls as root
- Point ` + "`--pacman-cache`" + ` and ` + "`--aur-cache`" + ` at writable directories`,
	}

	issues = map[Id]*Issue{
		stageFileNotFoundIssue.Id():       stageFileNotFoundIssue,
		ambiguousStageFileIssue.Id():      ambiguousStageFileIssue,
		malformedStageTokenIssue.Id():     malformedStageTokenIssue,
		invalidConfigValueIssue.Id():      invalidConfigValueIssue,
		configLoadFailedIssue.Id():        configLoadFailedIssue,
		containerEngineNotFoundIssue.Id(): containerEngineNotFoundIssue,
		buildFailedIssue.Id():             buildFailedIssue,
		imageNotFoundIssue.Id():           imageNotFoundIssue,
		bootcNotFoundIssue.Id():           bootcNotFoundIssue,
		permissionDeniedIssue.Id():        permissionDeniedIssue,
	}
)

// Values returns every catalog entry ordered by Id.
func Values() []*Issue {
	return slices.SortedFunc(maps.Values(issues), func(a, b *Issue) int {
		return int(a.id) - int(b.id)
	})
}

func Get(id Id) *Issue {
	return issues[id]
}
