package mdx

import (
	"context"
	"errors"
	"io/fs"
	"reflect"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/keithlinneman/linnemanlabs-book/internal/siteconfig"
)

func testEnv(vars map[string]string) siteconfig.Env {
	return siteconfig.LoadEnv(func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	})
}

func newTestCompiler(t *testing.T, vars map[string]string, sidebar *siteconfig.Sidebar, source fs.FS) *Compiler {
	t.Helper()
	cfg, err := siteconfig.New(testEnv(vars), sidebar)
	if err != nil {
		t.Fatalf("siteconfig.New: %v", err)
	}
	c, err := New(cfg, Options{Source: source})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func compile(t *testing.T, c *Compiler, page Page, src string) *Result {
	t.Helper()
	res, err := c.Compile(context.Background(), page, []byte(src))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return res
}

func mustContain(t *testing.T, html []byte, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(string(html), w) {
			t.Errorf("output missing %q\n%s", w, html)
		}
	}
}

var rootPage = Page{File: "page.mdx", Route: "/"}

func TestNew_ResolvesPipelineInOrder(t *testing.T) {
	c := newTestCompiler(t, nil, nil, nil)
	want := []siteconfig.PluginName{
		siteconfig.PluginCrossProjectLinks,
		siteconfig.PluginBrokenLinkChecker,
		siteconfig.PluginLocalLinks,
		siteconfig.PluginCodeProps,
		siteconfig.PluginHeadingSlug,
		siteconfig.PluginCloudinaryImg,
		siteconfig.PluginPageNumber,
	}
	if got := c.Plugins(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Plugins() = %v", got)
	}
	for _, n := range want {
		if !Registered(n) {
			t.Errorf("%s not registered", n)
		}
	}
}

func TestNew_Errors(t *testing.T) {
	env := testEnv(nil)

	if _, err := New(siteconfig.Base(env), Options{}); !errors.Is(err, ErrNoContent) {
		t.Fatalf("no content: err = %v", err)
	}

	cfg, err := siteconfig.WithContent(siteconfig.ContentOptions{
		Pipeline: []siteconfig.PluginEntry{{Name: "remark-unknown"}},
	})(siteconfig.Base(env))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(cfg, Options{}); !errors.Is(err, ErrUnknownPlugin) {
		t.Fatalf("unknown plugin: err = %v", err)
	}

	cfg, err = siteconfig.WithContent(siteconfig.ContentOptions{
		Pipeline: []siteconfig.PluginEntry{{Name: siteconfig.PluginCloudinaryImg, Options: "nope"}},
	})(siteconfig.Base(env))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(cfg, Options{}); !errors.Is(err, ErrBadOptions) {
		t.Fatalf("bad options: err = %v", err)
	}
}

func TestCompile_CrossProjectLinks(t *testing.T) {
	const src = "See [products](!api!/store/products) and [ui](!ui!).\n"

	tests := []struct {
		name string
		vars map[string]string
		want []string
	}{
		{
			name: "development uses project url",
			vars: map[string]string{
				siteconfig.EnvBaseURL:      "https://docs.example.com",
				siteconfig.EnvResourcesURL: "https://resources.example.com",
			},
			want: []string{
				`href="https://resources.example.com/v2/api/store/products"`,
				`href="https://resources.example.com/ui"`,
			},
		},
		{
			name: "production uses base url",
			vars: map[string]string{
				siteconfig.EnvBaseURL:      "https://docs.example.com",
				siteconfig.EnvResourcesURL: "https://resources.example.com",
				siteconfig.EnvPlatformEnv:  "production",
			},
			want: []string{`href="https://docs.example.com/v2/api/store/products"`},
		},
		{
			name: "missing urls degrade to relative",
			vars: nil,
			want: []string{`href="/v2/api/store/products"`, `href="/ui"`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCompiler(t, tt.vars, nil, nil)
			res := compile(t, c, rootPage, src)
			mustContain(t, res.HTML, tt.want...)
			if len(res.Diagnostics) != 0 {
				t.Errorf("diagnostics = %v", res.Diagnostics)
			}
		})
	}
}

func TestCompile_CrossProjectLinks_UnknownProject(t *testing.T) {
	c := newTestCompiler(t, nil, nil, nil)
	res := compile(t, c, rootPage, "[x](!medusa!/a)\n")
	mustContain(t, res.HTML, `href="/medusa/a"`)
	if len(res.Diagnostics) != 1 || res.Diagnostics[0].Plugin != siteconfig.PluginCrossProjectLinks {
		t.Fatalf("diagnostics = %v", res.Diagnostics)
	}
}

func TestCompile_BrokenLinks(t *testing.T) {
	source := fstest.MapFS{
		"learn/basics/page.mdx":     {Data: []byte("# Basics")},
		"learn/deployment/page.mdx": {Data: []byte("# Deployment")},
		"learn/basics/diagram.png":  {Data: []byte("png")},
	}
	c := newTestCompiler(t, nil, nil, source)
	page := Page{File: "learn/basics/page.mdx", Route: "/learn/basics"}

	src := "---\ntitle: Basics\n---\n# Basics\n\n" +
		"[ok](../deployment/page.mdx)\n\n" +
		"![img](./diagram.png)\n\n" +
		"[missing](../missing/page.mdx#top)\n\n" +
		"[dir](../install) [abs](/learn/x) [ext](https://example.com/a.html)\n"

	res := compile(t, c, page, src)
	if len(res.Diagnostics) != 1 {
		t.Fatalf("diagnostics = %v", res.Diagnostics)
	}
	d := res.Diagnostics[0]
	if d.Plugin != siteconfig.PluginBrokenLinkChecker || d.Target != "../missing/page.mdx#top" {
		t.Fatalf("diagnostic = %+v", d)
	}
	if d.Line != 10 {
		t.Errorf("line = %d, want 10", d.Line)
	}
	if d.File != page.File {
		t.Errorf("file = %q", d.File)
	}
	if !strings.Contains(d.String(), "learn/basics/page.mdx:10:") {
		t.Errorf("String() = %q", d.String())
	}
}

func TestCompile_BrokenLinks_NoSourceSkipsCheck(t *testing.T) {
	c := newTestCompiler(t, nil, nil, nil)
	res := compile(t, c, rootPage, "[missing](./nope/page.mdx)\n")
	if len(res.Diagnostics) != 0 {
		t.Fatalf("diagnostics = %v", res.Diagnostics)
	}
}

func TestCompile_LocalLinks(t *testing.T) {
	c := newTestCompiler(t, nil, nil, nil)
	page := Page{File: "learn/basics/page.mdx", Route: "/learn/basics"}
	res := compile(t, c, page, ""+
		"[deploy](../deployment/page.mdx#setup)\n\n"+
		"[home](../../page.mdx)\n\n"+
		"[asset](./diagram.png)\n\n"+
		"[grouped](../(guides)/recipes/page.md)\n")

	mustContain(t, res.HTML,
		`href="/v2/learn/deployment#setup"`,
		`href="/v2"`,
		`href="./diagram.png"`,
	)
	// page.md is not a page extension, so it is left alone.
	mustContain(t, res.HTML, `href="../(guides)/recipes/page.md"`)
}

func TestCompile_CodeProps(t *testing.T) {
	c := newTestCompiler(t, nil, nil, nil)
	src := "```js title=\"Install deps\" noReport highlights={[[\"1\"]]}\nconst ok = 1 < 2\n```\n\n```\nplain\n```\n"
	res := compile(t, c, rootPage, src)

	mustContain(t, res.HTML,
		`<pre><code class="language-js" title="Install deps" noReport="true" highlights="[[&quot;1&quot;]]">const ok = 1 &lt; 2`+"\n</code></pre>",
		"<pre><code>plain\n</code></pre>",
	)
}

func TestParseMeta(t *testing.T) {
	tests := []struct {
		meta string
		want []metaProp
	}{
		{"", nil},
		{`title="A b"`, []metaProp{{"title", "A b"}}},
		{`title='x' flag`, []metaProp{{"title", "x"}, {"flag", "true"}}},
		{`a=1 b={{x: 1}} c`, []metaProp{{"a", "1"}, {"b", "{x: 1}"}, {"c", "true"}}},
		{`class="x" onclick="y" ok`, []metaProp{{"ok", "true"}}},
		{`t="say \"hi\""`, []metaProp{{"t", `say "hi"`}}},
		{`t="unterminated`, []metaProp{{"t", "unterminated"}}},
	}
	for _, tt := range tests {
		if got := parseMeta(tt.meta); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseMeta(%q) = %v, want %v", tt.meta, got, tt.want)
		}
	}
}

func TestCompile_HeadingSlugs(t *testing.T) {
	c := newTestCompiler(t, nil, nil, nil)
	res := compile(t, c, rootPage, ""+
		"# Hello World\n\n"+
		"## Hello World\n\n"+
		"## Hello, World!\n\n"+
		"## Custom {#mine}\n\n"+
		"### `code` and _emphasis_\n")

	mustContain(t, res.HTML,
		`<h1 id="hello-world">`,
		`<h2 id="hello-world-1">`,
		`<h2 id="hello-world-2">`,
		`<h2 id="mine">`,
		`<h3 id="code-and-emphasis">`,
	)
	want := []Heading{
		{1, "hello-world", "Hello World"},
		{2, "hello-world-1", "Hello World"},
		{2, "hello-world-2", "Hello, World!"},
		{2, "mine", "Custom"},
		{3, "code-and-emphasis", "code and emphasis"},
	}
	if !reflect.DeepEqual(res.Headings, want) {
		t.Fatalf("headings = %+v", res.Headings)
	}
	if res.Title != "Hello World" {
		t.Errorf("title = %q", res.Title)
	}
}

func TestSlugger(t *testing.T) {
	s := newSlugger()
	for _, tt := range []struct{ in, want string }{
		{"Foo", "foo"},
		{"Foo", "foo-1"},
		{"foo-1", "foo-1-1"},
		{"Foo", "foo-2"},
		{"Ünïcode Tïtle", "ünïcode-tïtle"},
		{"!!!", ""},
	} {
		if got := s.slug(tt.in); got != tt.want {
			t.Errorf("slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCompile_Cloudinary(t *testing.T) {
	const src = "![a](https://res.cloudinary.com/demo/image/upload/v1700/docs/a.png)\n\n" +
		"![b](https://example.com/image/upload/b.png)\n"

	t.Run("empty cloud name keeps url cloud", func(t *testing.T) {
		c := newTestCompiler(t, nil, nil, nil)
		res := compile(t, c, rootPage, src)
		mustContain(t, res.HTML,
			`src="https://res.cloudinary.com/demo/image/upload/fl_lossy,f_auto,c_pad,ar_16:9,r_16/v1700/docs/a.png"`,
			`src="https://example.com/image/upload/b.png"`,
		)
	})
	t.Run("cloud name replaces segment", func(t *testing.T) {
		c := newTestCompiler(t, map[string]string{siteconfig.EnvCloudinaryCloudName: "acme"}, nil, nil)
		res := compile(t, c, rootPage, src)
		mustContain(t, res.HTML,
			`src="https://res.cloudinary.com/acme/image/upload/fl_lossy,f_auto,c_pad,ar_16:9,r_16/v1700/docs/a.png"`,
		)
	})
}

func TestCloudinary_Idempotent(t *testing.T) {
	tr, err := newCloudinary(&siteconfig.CloudinaryOptions{Flags: []string{"f_auto"}})
	if err != nil {
		t.Fatal(err)
	}
	ci := tr.(cloudinaryImages)
	once, ok := ci.rewrite("https://res.cloudinary.com/demo/image/upload/x.png")
	if !ok || once != "https://res.cloudinary.com/demo/image/upload/f_auto/x.png" {
		t.Fatalf("once = %q ok = %v", once, ok)
	}
	twice, _ := ci.rewrite(once)
	if twice != once {
		t.Fatalf("twice = %q", twice)
	}
	if _, ok := ci.rewrite("https://res.cloudinary.com/demo/image/fetch/x.png"); ok {
		t.Fatal("non-upload delivery type rewritten")
	}
}

func TestCompile_PageNumber(t *testing.T) {
	sb, err := siteconfig.ParseSidebar([]byte("items:\n  - title: Intro\n    path: /\n  - title: Basics\n    path: /learn/basics\n"))
	if err != nil {
		t.Fatal(err)
	}
	c := newTestCompiler(t, nil, sb, nil)

	res := compile(t, c, Page{File: "learn/basics/page.mdx", Route: "/learn/basics"}, "# Basics\n\n# Second\n")
	mustContain(t, res.HTML, `<h1 id="basics" data-page-number="2">`, `<h1 id="second">`)
	if res.Number != "2" {
		t.Errorf("Number = %q", res.Number)
	}

	res = compile(t, c, Page{File: "other/page.mdx", Route: "/other"}, "# Other\n")
	if strings.Contains(string(res.HTML), "data-page-number") || res.Number != "" {
		t.Fatalf("unlisted page numbered: %s", res.HTML)
	}
}

func TestCompile_FrontMatter(t *testing.T) {
	c := newTestCompiler(t, nil, nil, nil)
	res := compile(t, c, rootPage, "---\ntitle: Install\ndescription: Set up\ntags: [a, b]\nsidebar_position: 3\n---\n# Heading\n")
	fm := res.FrontMatter
	if fm.Title != "Install" || fm.Description != "Set up" || !reflect.DeepEqual(fm.Tags, []string{"a", "b"}) {
		t.Fatalf("front matter = %+v", fm)
	}
	if fm.Params["sidebar_position"] != 3 {
		t.Errorf("params = %v", fm.Params)
	}
	if res.Title != "Install" {
		t.Errorf("title = %q", res.Title)
	}
	if strings.Contains(string(res.HTML), "title:") {
		t.Errorf("front matter rendered: %s", res.HTML)
	}

	if _, err := c.Compile(context.Background(), rootPage, []byte("---\ntitle: x\n# no end\n")); err == nil {
		t.Fatal("expected error for unterminated front matter")
	}
}

func TestCompile_JSXPassthrough(t *testing.T) {
	c := newTestCompiler(t, nil, nil, nil)
	res := compile(t, c, rootPage, "<Note type=\"info\">\n\nRemember this.\n\n</Note>\n")
	mustContain(t, res.HTML, `<Note type="info">`, `</Note>`)

	env := testEnv(nil)
	cfg, err := siteconfig.WithContent(siteconfig.ContentOptions{JSX: false})(siteconfig.Base(env))
	if err != nil {
		t.Fatal(err)
	}
	strict, err := New(cfg, Options{})
	if err != nil {
		t.Fatal(err)
	}
	res = compile(t, strict, rootPage, "<Note>x</Note>\n")
	mustContain(t, res.HTML, "raw HTML omitted")
}

func TestCompile_ContextCanceled(t *testing.T) {
	c := newTestCompiler(t, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Compile(ctx, rootPage, []byte("# x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}
