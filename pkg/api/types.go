package api

import "github.com/cuemby/workflowd/pkg/types"

// ReplyResponse carries a manager command reply
type ReplyResponse struct {
	Status      int                   `json:"status"`
	Text        string                `json:"text"`
	ProcessList []types.ProcessRecord `json:"processList,omitempty"`
}

// RouteRequest creates a route, and its route group when Group is set
type RouteRequest struct {
	Name      string `json:"name"`
	Group     string `json:"group,omitempty"`
	Singleton bool   `json:"singleton"`
}

// ProcessRequest creates a process
type ProcessRequest struct {
	OwnerID  int64              `json:"ownerId"`
	RouteID  int64              `json:"routeId"`
	ParentID int64              `json:"parentId,omitempty"`
	Priority int                `json:"priority"`
	State    types.ProcessState `json:"state,omitempty"`
}

// ContactRequest creates a contact
type ContactRequest struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// MessageRequest attaches a message to a process
type MessageRequest struct {
	UUID  string `json:"uuid"`
	Label string `json:"label"`
	Size  int64  `json:"size"`
}

// PropertyRequest sets a process property in the workflow namespace
type PropertyRequest struct {
	Value string `json:"value"`
}

// CreatedResponse returns the id of a created entity
type CreatedResponse struct {
	ID int64 `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}
