package models

import (
	"fmt"

	"github.com/bytedance/sonic"

	"cabinet/types"
)

func ParseCreateSessionRequest(body []byte) (*types.CreateSessionRequest, error) {
	var req types.CreateSessionRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid create-session body: %w", err)
	}
	return &req, nil
}

func ParseRegisterFilesRequest(body []byte) (*types.RegisterFilesRequest, error) {
	var req types.RegisterFilesRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid register-files body: %w", err)
	}
	if len(req.Files) == 0 {
		return nil, fmt.Errorf("no files declared")
	}
	for _, f := range req.Files {
		if f.Path == "" {
			return nil, fmt.Errorf("file entry without path")
		}
		if f.Size < 0 {
			return nil, fmt.Errorf("negative size for %s", f.Path)
		}
	}
	return &req, nil
}

func ParseTreeOpRequest(body []byte) (*types.TreeOpRequest, error) {
	var req types.TreeOpRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid tree-op body: %w", err)
	}
	if len(req.Paths) == 0 {
		return nil, fmt.Errorf("no paths given")
	}
	return &req, nil
}

func ParseDeleteRequest(body []byte) (*types.DeleteRequest, error) {
	var req types.DeleteRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid delete body: %w", err)
	}
	if len(req.Paths) == 0 {
		return nil, fmt.Errorf("no paths given")
	}
	return &req, nil
}

func ParseZipRequest(body []byte) (*types.ZipRequest, error) {
	var req types.ZipRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid zip body: %w", err)
	}
	if len(req.Paths) == 0 {
		return nil, fmt.Errorf("no paths given")
	}
	return &req, nil
}

func ParseMkdirRequest(body []byte) (*types.MkdirRequest, error) {
	var req types.MkdirRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid mkdir body: %w", err)
	}
	if req.Path == "" {
		return nil, fmt.Errorf("missing path")
	}
	return &req, nil
}
