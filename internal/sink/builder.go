package sink

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fryguy04/evtx-to-json/internal/config"
)

// OutputPath derives the destination for an input file: the same path with
// its extension replaced by ".json". A leading dot does not start an
// extension, so ".evtx" maps to ".evtx.json".
func OutputPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	if ext == filepath.Base(inputPath) {
		ext = ""
	}
	return strings.TrimSuffix(inputPath, ext) + ".json"
}

// Build constructs the sink for one input file. With cfg.Stdout events go to
// os.Stdout; otherwise to OutputPath(inputPath).
func Build(cfg config.Config, inputPath string) (Writer, error) {
	return BuildTo(cfg, inputPath, os.Stdout)
}

// BuildTo is Build with the console stream supplied by the caller.
func BuildTo(cfg config.Config, inputPath string, stdout io.Writer) (Writer, error) {
	if cfg.Stdout {
		return NewConsole(stdout), nil
	}

	target := OutputPath(inputPath)
	if filepath.Clean(target) == filepath.Clean(inputPath) {
		return nil, fmt.Errorf("%w: output %s would overwrite its input", ErrOpenSink, target)
	}
	return NewFile(target, cfg.Format,
		WithMaxSize(cfg.OutputMaxB),
		WithMaxFiles(cfg.OutputMaxFiles),
	)
}
