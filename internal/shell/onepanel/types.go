package onepanel

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// Host Info
// =============================================================================

// OSInfo is the dashboard's base OS report.
type OSInfo struct {
	OS             string `json:"os"`
	Platform       string `json:"platform"`
	PlatformFamily string `json:"platformFamily"`
	KernelArch     string `json:"kernelArch"`
	KernelVersion  string `json:"kernelVersion"`
	DiskSize       uint64 `json:"diskSize"`
}

// =============================================================================
// Containers
// =============================================================================

// Container is one entry of the container search.
type Container struct {
	ContainerID string   `json:"containerID"`
	Name        string   `json:"name"`
	ImageName   string   `json:"imageName"`
	CreateTime  string   `json:"createTime"`
	State       string   `json:"state"`
	RunTime     string   `json:"runTime"`
	Ports       []string `json:"ports,omitempty"`
	Network     []string `json:"network,omitempty"`
}

// ContainerQuery filters the container search. Zero values mean first page,
// 100 per page, any name, any state.
type ContainerQuery struct {
	Page     int
	PageSize int
	Name     string
	State    string
}

func (q ContainerQuery) body() map[string]any {
	page, pageSize, state := q.Page, q.PageSize, q.State
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 100
	}
	if state == "" {
		state = "all"
	}
	return map[string]any{
		"page":     page,
		"pageSize": pageSize,
		"name":     q.Name,
		"state":    state,
		"orderBy":  "created_at",
		"order":    "descending",
	}
}

// ContainerPage is a page of containers.
type ContainerPage struct {
	Items []Container `json:"items"`
	Total int         `json:"total"`
}

// ContainerOperation is an action the panel applies to containers.
type ContainerOperation string

const (
	ContainerStart   ContainerOperation = "start"
	ContainerStop    ContainerOperation = "stop"
	ContainerRestart ContainerOperation = "restart"
	ContainerKill    ContainerOperation = "kill"
	ContainerPause   ContainerOperation = "pause"
	ContainerUnpause ContainerOperation = "unpause"
	ContainerRemove  ContainerOperation = "remove"
)

// ParseContainerOperation validates an operation name.
func ParseContainerOperation(s string) (ContainerOperation, error) {
	switch op := ContainerOperation(s); op {
	case ContainerStart, ContainerStop, ContainerRestart, ContainerKill,
		ContainerPause, ContainerUnpause, ContainerRemove:
		return op, nil
	default:
		return "", fmt.Errorf("%w: container operation %q", ErrInvalidOperation, s)
	}
}

// =============================================================================
// Stacks
// =============================================================================

// stackItem is the wire form of a compose search entry.
type stackItem struct {
	Name            string `json:"name"`
	Path            string `json:"path"`
	ContainerNumber int    `json:"containerNumber"`
}

// StackOperation is an action the panel applies to a compose stack.
type StackOperation string

const (
	StackUp      StackOperation = "up"
	StackDown    StackOperation = "down"
	StackStart   StackOperation = "start"
	StackStop    StackOperation = "stop"
	StackRestart StackOperation = "restart"
)

// ParseStackOperation validates an operation name.
func ParseStackOperation(s string) (StackOperation, error) {
	switch op := StackOperation(s); op {
	case StackUp, StackDown, StackStart, StackStop, StackRestart:
		return op, nil
	default:
		return "", fmt.Errorf("%w: stack operation %q", ErrInvalidOperation, s)
	}
}

// =============================================================================
// Images
// =============================================================================

// Image is one entry of the host's image list.
type Image struct {
	ID        string   `json:"id"`
	Tags      []string `json:"tags"`
	CreatedAt string   `json:"createdAt"`
	IsUsed    bool     `json:"isUsed"`

	// Size is a byte count on some panel versions and a formatted string on others.
	Size json.RawMessage `json:"size,omitempty"`
}
