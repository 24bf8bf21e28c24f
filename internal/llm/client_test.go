package llm

import (
	"context"
	"errors"
	"testing"
)

func TestFuncAdapter(t *testing.T) {
	var gotReq Request
	c := Func(func(ctx context.Context, req Request) (string, error) {
		gotReq = req
		return "completion", nil
	})
	out, err := c.Complete(context.Background(), Request{Prompt: "hi", Model: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "completion" {
		t.Errorf("Complete() = %q, want completion", out)
	}
	if gotReq.Prompt != "hi" {
		t.Errorf("Prompt = %q, want hi", gotReq.Prompt)
	}
}

func TestFuncAdapterPropagatesError(t *testing.T) {
	wantErr := errors.New("transport failed")
	c := Func(func(ctx context.Context, req Request) (string, error) {
		return "", wantErr
	})
	if _, err := c.Complete(context.Background(), Request{}); !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want %v", err, wantErr)
	}
}
