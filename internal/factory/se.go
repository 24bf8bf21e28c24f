package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/factoryrun/factory/internal/failure"
	"github.com/factoryrun/factory/internal/hashutil"
	"github.com/factoryrun/factory/internal/llm"
	"github.com/factoryrun/factory/internal/proposal"
	"github.com/factoryrun/factory/internal/workorder"
)

// contextBudgetBytes bounds the total size of context file content
// assembled into the SE prompt, independent of proposal.MaxTotalContentBytes
// (which bounds the LLM's output, not its input).
const contextBudgetBytes = 200 * 1024

// proposer assembles one attempt's prompt, invokes the LLM, and parses the
// result into a WriteProposal. It never touches the working tree.
type proposer struct {
	repoRoot string
	wo       *workorder.WorkOrder
	llmc     llm.Client
	cfg      Config
	paths    attemptPaths
}

// run executes SE for one attempt. A non-nil *failure.Brief is a normal,
// anticipated outcome (the LLM transport failed, or its response didn't
// parse); a non-nil error is an unexpected infrastructure failure (e.g.
// artifact write failed) that should abort the whole run.
func (p *proposer) run(ctx context.Context, previous *failure.Brief) (*proposal.WriteProposal, *failure.Brief, error) {
	hashes, err := currentHashes(p.repoRoot, p.wo.AllowedFiles)
	if err != nil {
		return nil, nil, fmt.Errorf("se: hash allowed files: %w", err)
	}

	contextBlob, truncatedFiles, err := assembleContext(p.repoRoot, p.wo.ContextFiles, contextBudgetBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("se: assemble context: %w", err)
	}

	prompt := buildPrompt(p.wo, hashes, contextBlob, truncatedFiles, previous)
	if err := hashutil.WriteFileAtomic(p.paths.sePrompt(), []byte(prompt), 0o644); err != nil {
		return nil, nil, fmt.Errorf("se: write prompt artifact: %w", err)
	}

	raw, err := p.llmc.Complete(ctx, llm.Request{
		Prompt:      prompt,
		Model:       p.cfg.LLMModel,
		Temperature: p.cfg.LLMTemperature,
		Timeout:     p.cfg.CommandTimeout(),
	})
	if err != nil {
		brief := failure.New(failure.StageException, fmt.Sprintf("llm completion failed: %v", err))
		return nil, brief, nil
	}
	if err := hashutil.WriteFileAtomic(p.paths.rawLLMResponse(), []byte(raw), 0o644); err != nil {
		return nil, nil, fmt.Errorf("se: write raw response artifact: %w", err)
	}

	prop, perr := proposal.Parse(raw)
	if perr != nil {
		brief := failure.New(failure.StageLLMOutputInvalid, perr.Error())
		return nil, brief, nil
	}

	if err := hashutil.WriteJSONAtomic(p.paths.proposedWrites(), prop); err != nil {
		return nil, nil, fmt.Errorf("se: write proposed writes artifact: %w", err)
	}
	return prop, nil, nil
}

// currentHashes returns the SHA-256 hash of every allowed file's current
// content, or hashutil.EmptySHA256Hex for files that do not yet exist —
// the same sentinel the LLM must use as base_sha256 for a brand-new file.
func currentHashes(repoRoot string, allowedFiles []string) (map[string]string, error) {
	hashes := make(map[string]string, len(allowedFiles))
	for _, rel := range allowedFiles {
		full := filepath.Join(repoRoot, rel)
		b, err := os.ReadFile(full)
		if err != nil {
			if os.IsNotExist(err) {
				hashes[rel] = hashutil.EmptySHA256Hex
				continue
			}
			return nil, fmt.Errorf("read %s: %w", rel, err)
		}
		hashes[rel] = hashutil.SHA256Hex(b)
	}
	return hashes, nil
}

// assembleContext concatenates context files in the order given, up to
// budget bytes total. The first file that would overflow the budget is
// truncated to exactly fill it and processing stops there; this is
// deterministic given a fixed context_files order, unlike e.g.
// proportional truncation across all files.
func assembleContext(repoRoot string, contextFiles []string, budget int) (string, []string, error) {
	var sb strings.Builder
	var truncated []string
	remaining := budget
	for _, rel := range contextFiles {
		if remaining <= 0 {
			truncated = append(truncated, rel)
			continue
		}
		full := filepath.Join(repoRoot, rel)
		b, err := os.ReadFile(full)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", nil, fmt.Errorf("read context file %s: %w", rel, err)
		}
		content := string(b)
		if len(content) > remaining {
			content = content[:remaining]
			truncated = append(truncated, rel)
		}
		fmt.Fprintf(&sb, "--- %s ---\n%s\n", rel, content)
		remaining -= len(content)
	}
	return sb.String(), truncated, nil
}

// buildPrompt renders the full instruction text given to the LLM. The
// only structured output accepted back is a WriteProposal JSON object;
// the prompt says so explicitly and restates the work order's hard
// constraints so the model isn't relying on the first attempt's memory.
func buildPrompt(wo *workorder.WorkOrder, hashes map[string]string, contextBlob string, truncatedFiles []string, previous *failure.Brief) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Work order: %s\n", wo.ID)
	if wo.Notes != "" {
		fmt.Fprintf(&sb, "Notes: %s\n", wo.Notes)
	}
	if wo.Forbidden != "" {
		fmt.Fprintf(&sb, "Forbidden: %s\n", wo.Forbidden)
	}

	sb.WriteString("\nAllowed files and their current SHA-256 (use these as base_sha256):\n")
	allowed := append([]string{}, wo.AllowedFiles...)
	sort.Strings(allowed)
	for _, rel := range allowed {
		fmt.Fprintf(&sb, "  %s  %s\n", hashes[rel], rel)
	}

	sb.WriteString("\nAcceptance commands (must all succeed, in order):\n")
	for _, cmd := range wo.AcceptanceCommands {
		fmt.Fprintf(&sb, "  %s\n", cmd)
	}

	if contextBlob != "" {
		sb.WriteString("\nContext:\n")
		sb.WriteString(contextBlob)
	}
	if len(truncatedFiles) > 0 {
		fmt.Fprintf(&sb, "\n(context truncated, omitted or partial: %s)\n", strings.Join(truncatedFiles, ", "))
	}

	if previous != nil {
		fmt.Fprintf(&sb, "\nThe previous attempt failed at stage %q.\n", previous.Stage)
		if previous.Command != "" {
			fmt.Fprintf(&sb, "Failing command: %s\n", previous.Command)
		}
		if previous.PrimaryErrorExcerpt != "" {
			fmt.Fprintf(&sb, "Error excerpt:\n%s\n", previous.PrimaryErrorExcerpt)
		}
		if previous.ConstraintsReminder != "" {
			fmt.Fprintf(&sb, "Reminder: %s\n", previous.ConstraintsReminder)
		}
	}

	sb.WriteString("\nRespond with a single JSON object matching the WriteProposal schema: {\"summary\": string, \"writes\": [{\"path\": string, \"base_sha256\": string, \"content\": string}]}. No markdown, no commentary outside the JSON object.\n")
	return sb.String()
}
