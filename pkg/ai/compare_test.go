package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/knitgraph/loom/pkg/common"
)

// verdictStubClient returns a canned comparison verdict.
type verdictStubClient struct {
	verdict CompareResponse
	err     error
}

func (s *verdictStubClient) GenerateCompletion(ctx context.Context, prompt string, opts ...GenerateOption) (string, error) {
	return "", nil
}

func (s *verdictStubClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...GenerateOption) error {
	if s.err != nil {
		return s.err
	}
	*(out.(*CompareResponse)) = s.verdict
	return nil
}

func (s *verdictStubClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return nil, errors.New("not implemented")
}

func (s *verdictStubClient) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func (s *verdictStubClient) ResetMetrics()            {}
func (s *verdictStubClient) GetMetrics() ModelMetrics { return ModelMetrics{} }

func TestCompareEntitiesUnknownDecisionIsUnavailable(t *testing.T) {
	client := &verdictStubClient{verdict: CompareResponse{Decision: "MAYBE", Confidence: 0.9}}

	a := common.Node{Name: "ACME", Type: "Organization"}
	b := common.Node{Name: "ACME CORP", Type: "Organization"}
	_, err := CompareEntities(context.Background(), client, a, b)
	if !errors.Is(err, common.ErrReasonerUnavailable) {
		t.Fatalf("CompareEntities() error = %v, want ErrReasonerUnavailable", err)
	}
}

func TestCompareEntitiesTransportErrorIsUnavailable(t *testing.T) {
	client := &verdictStubClient{err: errors.New("connection refused")}

	a := common.Node{Name: "ACME", Type: "Organization"}
	b := common.Node{Name: "ACME CORP", Type: "Organization"}
	_, err := CompareEntities(context.Background(), client, a, b)
	if !errors.Is(err, common.ErrReasonerUnavailable) {
		t.Fatalf("CompareEntities() error = %v, want ErrReasonerUnavailable", err)
	}
}

func TestCompareEntitiesClampsAndDefaults(t *testing.T) {
	client := &verdictStubClient{verdict: CompareResponse{
		Decision:   common.DecisionMerge,
		Confidence: 1.4,
	}}

	a := common.Node{Name: "ACME", Type: "Organization"}
	b := common.Node{Name: "ACME CORP", Type: "Organization"}
	got, err := CompareEntities(context.Background(), client, a, b)
	if err != nil {
		t.Fatalf("CompareEntities() error = %v", err)
	}
	if got.Confidence != 1.0 {
		t.Fatalf("confidence = %v, want clamped to 1.0", got.Confidence)
	}
	if got.CanonicalName != "ACME" {
		t.Fatalf("canonical name = %q, want default to entity A's name", got.CanonicalName)
	}
}
