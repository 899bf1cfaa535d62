package worker

import "context"

// VLMDescriber wraps a Process configured for the vision-language
// description worker that backs the VLM pipeline.
type VLMDescriber struct {
	proc *Process
}

// NewVLMDescriber binds a VLMDescriber to the given binary path. It uses
// the VLM kind's default timeout unless timeoutOverride is non-nil, in
// which case that Process's Timeout is used.
func NewVLMDescriber(binaryPath string, timeoutOverride *Process) *VLMDescriber {
	proc := NewProcess(KindVLM, binaryPath)
	if timeoutOverride != nil {
		proc.Timeout = timeoutOverride.Timeout
	}
	return &VLMDescriber{proc: proc}
}

// Describe requests a natural-language description and any structured
// data the worker extracts for one image.
func (v *VLMDescriber) Describe(ctx context.Context, imagePath, contextText string) (*VLMResponse, error) {
	req := VLMRequest{ImagePath: imagePath, ContextText: contextText}
	var resp VLMResponse
	if err := v.proc.Call(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
