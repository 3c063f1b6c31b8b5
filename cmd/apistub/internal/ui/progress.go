package ui

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// Progress renders generation progress as a bar. It satisfies
// apistubgen.Progress.
type Progress struct {
	output   io.Writer
	disabled bool
	bar      *progressbar.ProgressBar
}

// NewProgress creates a progress bar writing to output. A disabled
// Progress discards everything.
func NewProgress(output io.Writer, disabled bool) *Progress {
	if disabled {
		output = io.Discard
	}
	return &Progress{output: output, disabled: disabled}
}

// Start begins a bar over total packages.
func (p *Progress) Start(total int) {
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.output),
		progressbar.OptionSetDescription("[Generating]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
	)
}

// Advance marks pkg as done.
func (p *Progress) Advance(pkg string) {
	if p.bar == nil {
		return
	}
	p.bar.Describe("[Generating] " + pkg)
	_ = p.bar.Add(1)
}

// Finish completes and clears the bar.
func (p *Progress) Finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	p.bar = nil
}
