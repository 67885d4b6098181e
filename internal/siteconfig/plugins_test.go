package siteconfig

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestPipeline_Order(t *testing.T) {
	p := Pipeline(LoadEnv(mapLookup(nil)), nil)

	want := []PluginName{
		PluginCrossProjectLinks,
		PluginBrokenLinkChecker,
		PluginLocalLinks,
		PluginCodeProps,
		PluginHeadingSlug,
		PluginCloudinaryImg,
		PluginPageNumber,
	}
	got := make([]PluginName, 0, len(p))
	for _, e := range p {
		got = append(got, e.Name)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("pipeline order changed:\n got  %v\n want %v", got, want)
	}
}

func crossProjectOptions(t *testing.T, p []PluginEntry) *CrossProjectLinksOptions {
	t.Helper()
	o, ok := p[0].Options.(*CrossProjectLinksOptions)
	if !ok {
		t.Fatalf("first plugin options = %T", p[0].Options)
	}
	return o
}

func TestPipeline_CrossProjectLinks_RelativeUnlessProduction(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want bool
	}{
		{"both unset", nil, false},
		{"build production", map[string]string{EnvBuildEnv: "production"}, true},
		{"platform production", map[string]string{EnvPlatformEnv: "production"}, true},
		{"neither production", map[string]string{EnvBuildEnv: "development", EnvPlatformEnv: "preview"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := crossProjectOptions(t, Pipeline(LoadEnv(mapLookup(tt.env)), nil))
			if o.UseBaseURL != tt.want {
				t.Fatalf("UseBaseURL = %v, want %v", o.UseBaseURL, tt.want)
			}
		})
	}
}

func TestPipeline_CrossProjectLinks_Projects(t *testing.T) {
	env := LoadEnv(mapLookup(map[string]string{
		EnvBaseURL:      "https://docs.example.com",
		EnvResourcesURL: "https://resources.example.com",
	}))
	o := crossProjectOptions(t, Pipeline(env, nil))

	if o.BaseURL != "https://docs.example.com" {
		t.Errorf("BaseURL = %q", o.BaseURL)
	}
	want := map[string]ProjectURL{
		"resources":  {URL: "https://resources.example.com", Path: "v2/resources"},
		"user-guide": {URL: "https://resources.example.com", Path: "v2/user-guide"},
		"ui":         {URL: "https://resources.example.com", Path: "ui"},
		"api":        {URL: "https://resources.example.com", Path: "v2/api"},
	}
	if !reflect.DeepEqual(o.ProjectURLs, want) {
		t.Fatalf("ProjectURLs = %+v", o.ProjectURLs)
	}
}

func TestPipeline_Cloudinary_EmptyCloudNameIsPresent(t *testing.T) {
	p := Pipeline(LoadEnv(mapLookup(nil)), nil)
	o, ok := p[5].Options.(*CloudinaryOptions)
	if !ok {
		t.Fatalf("cloudinary options = %T", p[5].Options)
	}
	if o.CloudName != "" {
		t.Fatalf("CloudName = %q, want empty", o.CloudName)
	}

	data, err := json.Marshal(p[5])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"cloudName":""`) {
		t.Fatalf("serialized options must carry an empty cloudName, got %s", data)
	}
}

func TestPipeline_Cloudinary_FixedParameters(t *testing.T) {
	env := LoadEnv(mapLookup(map[string]string{EnvCloudinaryCloudName: "acme"}))
	o := Pipeline(env, nil)[5].Options.(*CloudinaryOptions)

	if o.CloudName != "acme" {
		t.Errorf("CloudName = %q", o.CloudName)
	}
	if !reflect.DeepEqual(o.Flags, []string{"fl_lossy", "f_auto"}) {
		t.Errorf("Flags = %v", o.Flags)
	}
	if o.Resize != (CloudinaryResize{Action: "pad", AspectRatio: "16:9"}) {
		t.Errorf("Resize = %+v", o.Resize)
	}
	if o.RoundCorners != 16 {
		t.Errorf("RoundCorners = %d", o.RoundCorners)
	}
}

func TestPipeline_CodePropsAndPageNumber(t *testing.T) {
	sb := &Sidebar{}
	p := Pipeline(LoadEnv(mapLookup(nil)), sb)

	cp, ok := p[3].Options.(*CodePropsOptions)
	if !ok || cp.TagName != "code" {
		t.Fatalf("code props options = %#v", p[3].Options)
	}
	pn, ok := p[6].Options.(*PageNumberOptions)
	if !ok || pn.Sidebar != sb {
		t.Fatalf("page number options = %#v", p[6].Options)
	}
	for _, i := range []int{1, 2, 4} {
		if p[i].Options != nil {
			t.Errorf("%s options = %#v, want nil", p[i].Name, p[i].Options)
		}
	}
}
