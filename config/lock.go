package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"github.com/tie/mcfetch/builder"
	"github.com/tie/mcfetch/config/hclspec"
	"github.com/tie/mcfetch/graph"
	"github.com/tie/mcfetch/manifest"
)

// LockBuilder writes task blocks of a lock file.
type LockBuilder struct {
	*hclwrite.Body
	Length int
}

func NewLockFile(version string) (*hclwrite.File, *LockBuilder) {
	f := hclwrite.NewEmptyFile()
	body := f.Body()
	body.SetAttributeValue("version", cty.StringVal(version))
	return f, &LockBuilder{Body: body}
}

func (b *LockBuilder) Add(t graph.Task) {
	b.AppendNewline()
	b.Length++

	block := b.AppendNewBlock("task", []string{t.Dest})
	body := block.Body()
	body.SetAttributeValue("kind", cty.StringVal(string(t.Kind)))
	body.SetAttributeValue("url", cty.StringVal(t.URL))
	body.SetAttributeValue("sha1", cty.StringVal(t.SHA1))
	body.SetAttributeValue("size", cty.NumberIntVal(t.Size))
	if t.Extract != nil && len(t.Extract.Exclude) > 0 {
		body.SetAttributeValue("exclude", stringList(t.Extract.Exclude))
	}
}

// EncodeLock renders the lock file for tasks.
func EncodeLock(version string, tasks []graph.Task) []byte {
	f, b := NewLockFile(version)
	for _, t := range tasks {
		b.Add(t)
	}
	return hclwrite.Format(f.Bytes())
}

// DecodeLock parses a lock file back into its version and tasks.
func DecodeLock(p *hclparse.Parser, src []byte, filename string) (string, []graph.Task, hcl.Diagnostics) {
	file, diags := p.ParseHCL(src, filename)
	if diags.HasErrors() {
		return "", nil, diags
	}
	var lock hclspec.Lock
	diags = append(diags, gohcl.DecodeBody(file.Body, nil, &lock)...)
	if diags.HasErrors() {
		return "", nil, diags
	}
	// Block ranges locate diagnostics; blocks decode in source order.
	content, _ := file.Body.Content(lockSchema)
	tasks := make([]graph.Task, 0, len(lock.Tasks))
	for i, lt := range lock.Tasks {
		t := graph.Task{
			Dest: lt.Dest,
			Kind: graph.Kind(lt.Kind),
			URL:  lt.URL,
			SHA1: strings.ToLower(lt.SHA1),
			Size: lt.Size,
		}
		var subject *hcl.Range
		if content != nil && i < len(content.Blocks) {
			subject = content.Blocks[i].DefRange.Ptr()
		}
		if d := checkTask(t, subject); d != nil {
			diags = append(diags, d)
			continue
		}
		if t.Kind == graph.KindNative {
			t.Extract = &manifest.Extract{Exclude: lt.Exclude}
		}
		tasks = append(tasks, t)
	}
	if diags.HasErrors() {
		return "", nil, diags
	}
	return lock.Version, tasks, diags
}

var lockSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{{Name: "version", Required: true}},
	Blocks:     []hcl.BlockHeaderSchema{{Type: "task", LabelNames: []string{"dest"}}},
}

func checkTask(t graph.Task, subject *hcl.Range) *hcl.Diagnostic {
	var detail string
	switch {
	case !manifest.ValidSHA1(t.SHA1):
		detail = fmt.Sprintf("The sha1 %q is not a 40 digit hex digest.", t.SHA1)
	case !t.Kind.Valid():
		detail = fmt.Sprintf("The kind %q is not a known task kind.", t.Kind)
	case t.Size < 0:
		detail = fmt.Sprintf("The size %d is negative.", t.Size)
	case t.URL == "":
		detail = "The url is empty."
	default:
		if _, err := builder.CleanPath(t.Dest); err != nil {
			detail = fmt.Sprintf("The destination is not a relative path below the instance root: %s.", err)
		}
	}
	if detail == "" {
		return nil
	}
	return &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  "Invalid task",
		Detail:   detail,
		Subject:  subject,
	}
}

// SumsBuilder writes check blocks of a sums file.
type SumsBuilder struct {
	*hclwrite.Body
	Length int
}

func (b *SumsBuilder) Add(dest, sha1 string, sums []string) {
	if b.Length > 0 {
		b.AppendNewline()
	}
	b.Length++

	block := b.AppendNewBlock("check", []string{dest})
	body := block.Body()
	body.SetAttributeValue("sha1", cty.StringVal(sha1))
	body.SetAttributeValue("sums", stringList(sums))
}

// DecodeSums parses a sums file into checks keyed by destination.
func DecodeSums(p *hclparse.Parser, src []byte, filename string) (map[string]hclspec.Check, hcl.Diagnostics) {
	file, diags := p.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diags
	}
	var sums hclspec.Sums
	diags = append(diags, gohcl.DecodeBody(file.Body, nil, &sums)...)
	if diags.HasErrors() {
		return nil, diags
	}
	m := make(map[string]hclspec.Check, len(sums.Checks))
	for _, c := range sums.Checks {
		if _, ok := m[c.Dest]; ok {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate check block",
				Detail:   fmt.Sprintf("A check for %q was already declared.", c.Dest),
			})
			continue
		}
		m[c.Dest] = c
	}
	return m, diags
}

func stringList(ss []string) cty.Value {
	if len(ss) == 0 {
		return cty.ListValEmpty(cty.String)
	}
	vals := make([]cty.Value, len(ss))
	for i, s := range ss {
		vals[i] = cty.StringVal(s)
	}
	return cty.ListVal(vals)
}
