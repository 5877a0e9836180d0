package health

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/clearledger/vat-extract/internal/extractor"
)

// ModelLister is the slice of the OpenAI client the AI probe needs.
// *openai.Client satisfies it.
type ModelLister interface {
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// AIProbe checks the vision capability with a model-list call, the
// cheapest authenticated request the API offers.
func AIProbe(client ModelLister) Probe {
	return func(ctx context.Context) error {
		_, err := client.ListModels(ctx)
		return err
	}
}

// OCRProbe checks that the tesseract binary is present and runnable.
func OCRProbe(runner extractor.Runner) Probe {
	return func(ctx context.Context) error {
		_, stderr, err := runner.Run(ctx, "tesseract", "--version")
		if err != nil {
			return fmt.Errorf("tesseract probe: %w (%s)", err, stderr)
		}
		return nil
	}
}

// TabularProbe always succeeds: the spreadsheet parser is in-process and
// has no service to be down.
func TabularProbe() Probe {
	return func(ctx context.Context) error {
		return nil
	}
}
