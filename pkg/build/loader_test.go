package build_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pugjinja/pugjinja/pkg/build"
	"github.com/pugjinja/pugjinja/pkg/jinja2"
	"github.com/pugjinja/pugjinja/pkg/runtime"
)

func TestLoaderRendersTreeTemplates(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"layouts/base.pug": `
- kind: doctype
  val: html
- kind: tag
  name: title
  block:
    - kind: codeblock
      name: title
      block:
        - kind: text
          val: Site
- kind: codeblock
  name: body
`,
		"pages/post.pug": `
- kind: extends
  path: /layouts/base
- kind: codeblock
  name: title
  mode: append
  block:
    - kind: text
      val: " | "
    - kind: code
      val: post.title
      buffer: true
      escape: true
- kind: codeblock
  name: body
  block:
    - kind: include
      path: meta
    - kind: tag
      name: ul
      block:
        - kind: each
          keys: [tag]
          obj: post.tags
          block:
            - kind: tag
              name: li
              block:
                - kind: code
                  val: tag
                  buffer: true
`,
		"pages/meta.pug": `
- kind: tag
  name: p
  attrs:
    - {name: class, val: "'meta'"}
    - {name: data-draft, val: post.draft}
`,
		"pages/plain.html": "<i>{{ post.title }}</i>",
	}
	for name, src := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	r := runtime.NewRenderer(build.Loader{Dirs: []string{dir}})
	ctx := jinja2.Context{"post": jinja2.FromGo(map[string]any{
		"title": "A & B",
		"tags":  []string{"go", "web"},
		"draft": false,
	})}

	cases := []struct {
		name string
		want string
	}{
		{"pages/post.pug", `<!DOCTYPE html><title>Site | A &amp; B</title><p class="meta"></p><ul><li>go</li><li>web</li></ul>`},
		{"pages/plain.html", "<i>A & B</i>"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.RenderTemplate(tc.name, ctx)
			if err != nil {
				t.Fatalf("render error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got  %q\nwant %q", got, tc.want)
			}
		})
	}

	var nf jinja2.ErrTemplateNotFound
	if _, err := r.RenderTemplate("pages/missing.pug", ctx); !errors.As(err, &nf) {
		t.Fatalf("want ErrTemplateNotFound, got %v", err)
	}
}
