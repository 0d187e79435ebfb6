package output

import (
	"io"

	"gopkg.in/yaml.v3"
)

// yamlDoc is one YAML document of the report stream.
type yamlDoc struct {
	Header  *Header  `yaml:"header,omitempty"`
	Record  *Record  `yaml:"record,omitempty"`
	Summary *Summary `yaml:"summary,omitempty"`
}

// YAMLFormatter writes the report as a YAML document stream: a header
// document, one document per iteration, and a summary document.
type YAMLFormatter struct {
	w   io.Writer
	enc *yaml.Encoder
}

func (f *YAMLFormatter) encoder(w io.Writer) *yaml.Encoder {
	if f.enc == nil || f.w != w {
		f.w = w
		f.enc = yaml.NewEncoder(w)
		f.enc.SetIndent(2)
	}
	return f.enc
}

// Header writes the header document.
func (f *YAMLFormatter) Header(w io.Writer, h *Header) error {
	return f.encoder(w).Encode(yamlDoc{Header: h})
}

// Record writes one iteration document.
func (f *YAMLFormatter) Record(w io.Writer, r *Record) error {
	return f.encoder(w).Encode(yamlDoc{Record: r})
}

// Footer writes the summary document and closes the stream.
func (f *YAMLFormatter) Footer(w io.Writer, s *Summary) error {
	enc := f.encoder(w)
	if err := enc.Encode(yamlDoc{Summary: s}); err != nil {
		return err
	}
	f.enc = nil
	return enc.Close()
}

func init() {
	Register("yaml", func() Formatter {
		return &YAMLFormatter{}
	})
}

var _ Formatter = (*YAMLFormatter)(nil)
