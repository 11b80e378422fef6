package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"sedar-analyst/internal/domain"
	"sedar-analyst/internal/retriever"
)

const RetrieverToolName = "sedar_filing_retriever"

// NoIndexObservation is returned when the filing collection has not been built.
const NoIndexObservation = "The SEDAR+ filing index has not been built yet, so no filing information is available. Run the ingestion step first."

// Answerer is the retrieval capability behind the filing tool.
type Answerer interface {
	Answer(ctx context.Context, question string) (retriever.Answer, error)
}

// RetrieverTool answers questions about the ingested filing.
func RetrieverTool(a Answerer) Descriptor {
	minLen := 1
	return Descriptor{
		Name:        RetrieverToolName,
		Kind:        KindRetrieve,
		Description: "Use this tool to retrieve specific information and answer questions about a company's SEDAR+ financial filing. Ask one detailed question in plain text.",
		Schema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"question": {Type: "string", MinLength: &minLen, Description: "A self-contained question about the filing."},
			},
			Required: []string{"question"},
		},
		invoke: func(ctx context.Context, args map[string]any) string {
			question, _ := args["question"].(string)
			ans, err := a.Answer(ctx, question)
			switch {
			case errors.Is(err, domain.ErrCollectionNotFound):
				return NoIndexObservation
			case err != nil:
				return fmt.Sprintf("An error occurred: %s", rootCause(err))
			case !ans.Found:
				return retriever.NotFoundAnswer
			}
			return ans.Text
		},
	}
}
