package mdx

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"github.com/keithlinneman/linnemanlabs-book/internal/siteconfig"
)

// CloudinaryHost serves hosted images; pages embed it cross-origin.
const CloudinaryHost = "res.cloudinary.com"

// cloudinaryImages adds a delivery transformation to hosted images.
type cloudinaryImages struct {
	cloudName      string
	transformation string
}

func newCloudinary(opts any) (parser.ASTTransformer, error) {
	o, err := optionsAs[siteconfig.CloudinaryOptions](opts, siteconfig.PluginCloudinaryImg)
	if err != nil {
		return nil, err
	}
	return cloudinaryImages{
		cloudName:      o.CloudName,
		transformation: transformation(o),
	}, nil
}

// transformation renders o as a Cloudinary transformation segment,
// e.g. "fl_lossy,f_auto,c_pad,ar_16:9,r_16".
func transformation(o *siteconfig.CloudinaryOptions) string {
	parts := append([]string(nil), o.Flags...)
	if o.Resize.Action != "" {
		parts = append(parts, "c_"+o.Resize.Action)
	}
	if o.Resize.AspectRatio != "" {
		parts = append(parts, "ar_"+o.Resize.AspectRatio)
	}
	if o.RoundCorners > 0 {
		parts = append(parts, "r_"+strconv.Itoa(o.RoundCorners))
	}
	return strings.Join(parts, ",")
}

func (t cloudinaryImages) Transform(doc *ast.Document, _ text.Reader, _ parser.Context) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		img, ok := n.(*ast.Image)
		if !ok {
			return ast.WalkContinue, nil
		}
		if out, ok := t.rewrite(string(img.Destination)); ok {
			img.Destination = []byte(out)
		}
		return ast.WalkContinue, nil
	})
}

// rewrite handles URLs of the form
// https://res.cloudinary.com/<cloud>/<type>/upload/<rest>.
func (t cloudinaryImages) rewrite(dest string) (string, bool) {
	u, err := url.Parse(dest)
	if err != nil || u.Host != CloudinaryHost {
		return "", false
	}
	segs := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
	if len(segs) < 4 || segs[2] != "upload" {
		return "", false
	}
	if t.cloudName != "" {
		segs[0] = t.cloudName
	}
	if t.transformation != "" && segs[3] != t.transformation {
		segs = append(segs[:3], append([]string{t.transformation}, segs[3:]...)...)
	}
	u.Path = "/" + strings.Join(segs, "/")
	u.RawPath = ""
	return u.String(), true
}
