package api

import "github.com/samcharles93/convtune/internal/direct"

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
}

type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type ConfigList struct {
	Device  string        `json:"device"`
	Configs []ConfigEntry `json:"configs"`
}

type PutConfigRequest struct {
	Value string `json:"value"`
}

type RequestList struct {
	Device string   `json:"device"`
	Keys   []string `json:"keys"`
}

// ConstructRequest describes one convolution. Input is x for both
// directions; Weights is KCHW.
type ConstructRequest struct {
	Device    string `json:"device"`
	Direction string `json:"direction,omitempty"`
	Input     [4]int `json:"input"`
	Weights   [4]int `json:"weights"`
	Pad       [2]int `json:"pad,omitempty"`
	Stride    [2]int `json:"stride,omitempty"`
	Bias      bool   `json:"bias,omitempty"`
	DataType  string `json:"data_type,omitempty"`
	// Search overrides the server default when set.
	Search *bool `json:"search,omitempty"`
}

type KernelInfo struct {
	Strategy string `json:"strategy"`
	File     string `json:"file"`
	Name     string `json:"name"`
	Flags    string `json:"flags"`
	Local    [3]int `json:"local"`
	Global   [3]int `json:"global"`
}

type ConstructResponse struct {
	Device   string           `json:"device"`
	Solution *direct.Solution `json:"solution"`
	Kernel   KernelInfo       `json:"kernel"`
}
