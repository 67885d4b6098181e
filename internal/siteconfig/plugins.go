package siteconfig

// PluginName identifies a content transform. The compiler resolves names
// through its registry, so the pipeline stays a plain declaration.
type PluginName string

const (
	PluginCrossProjectLinks PluginName = "cross-project-links"
	PluginBrokenLinkChecker PluginName = "broken-link-checker"
	PluginLocalLinks        PluginName = "local-links"
	PluginCodeProps         PluginName = "code-props"
	PluginHeadingSlug       PluginName = "heading-slug"
	PluginCloudinaryImg     PluginName = "cloudinary-img"
	PluginPageNumber        PluginName = "page-number"
)

// PluginEntry is one step of the pipeline. Options is nil or one of the
// *Options types below; it is fully resolved when the pipeline is built.
type PluginEntry struct {
	Name    PluginName `json:"name"`
	Options any        `json:"options,omitempty"`
}

// ProjectURL locates a sibling project for cross-project links.
type ProjectURL struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// CrossProjectLinksOptions configures rewriting of "!project!/path" links.
type CrossProjectLinksOptions struct {
	BaseURL     string                `json:"baseUrl"`
	ProjectURLs map[string]ProjectURL `json:"projectUrls"`
	// UseBaseURL forces links onto BaseURL instead of each project's own URL.
	UseBaseURL bool `json:"useBaseUrl"`
}

// CodePropsOptions configures which element receives code fence meta props.
type CodePropsOptions struct {
	TagName string `json:"tagName"`
}

// CloudinaryResize is the resize transformation applied to hosted images.
type CloudinaryResize struct {
	Action      string `json:"action"`
	AspectRatio string `json:"aspectRatio"`
}

// CloudinaryOptions configures image URL transformation. CloudName is always
// present, possibly empty.
type CloudinaryOptions struct {
	CloudName    string           `json:"cloudName"`
	Flags        []string         `json:"flags"`
	Resize       CloudinaryResize `json:"resize"`
	RoundCorners int              `json:"roundCorners"`
}

// PageNumberOptions supplies the sidebar used to number pages.
type PageNumberOptions struct {
	Sidebar *Sidebar `json:"sidebar"`
}

// Project keys understood by cross-project links.
const (
	ProjectResources = "resources"
	ProjectUserGuide = "user-guide"
	ProjectUI        = "ui"
	ProjectAPI       = "api"
)

// Pipeline returns the ordered content transforms. Order matters: links are
// resolved before images are transformed and pages are numbered last.
func Pipeline(env Env, sidebar *Sidebar) []PluginEntry {
	return []PluginEntry{
		{
			Name: PluginCrossProjectLinks,
			Options: &CrossProjectLinksOptions{
				BaseURL: env.BaseURL,
				ProjectURLs: map[string]ProjectURL{
					ProjectResources: {URL: env.ResourcesURL, Path: "v2/resources"},
					ProjectUserGuide: {URL: env.ResourcesURL, Path: "v2/user-guide"},
					ProjectUI:        {URL: env.ResourcesURL, Path: "ui"},
					ProjectAPI:       {URL: env.ResourcesURL, Path: "v2/api"},
				},
				UseBaseURL: env.Production(),
			},
		},
		{Name: PluginBrokenLinkChecker},
		{Name: PluginLocalLinks},
		{
			Name:    PluginCodeProps,
			Options: &CodePropsOptions{TagName: "code"},
		},
		{Name: PluginHeadingSlug},
		{
			Name: PluginCloudinaryImg,
			Options: &CloudinaryOptions{
				CloudName: env.CloudinaryCloudName,
				Flags:     []string{"fl_lossy", "f_auto"},
				Resize: CloudinaryResize{
					Action:      "pad",
					AspectRatio: "16:9",
				},
				RoundCorners: 16,
			},
		},
		{
			Name:    PluginPageNumber,
			Options: &PageNumberOptions{Sidebar: sidebar},
		},
	}
}
