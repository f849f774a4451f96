package api

import "encoding/json"

// Envelope is the body of every non-paginated TradeSense response
type Envelope[T any] struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Data    T                   `json:"data,omitempty"`
	Error   string              `json:"error,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// Pagination describes the position of a Page in its collection
type Pagination struct {
	Page    int  `json:"page"`
	PerPage int  `json:"per_page"`
	Total   int  `json:"total"`
	Pages   int  `json:"pages"`
	HasNext bool `json:"has_next"`
	HasPrev bool `json:"has_prev"`
}

// Page is the body of a paginated list response
type Page[T any] struct {
	Success    bool       `json:"success"`
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// ListParams are the query parameters accepted by list endpoints
type ListParams struct {
	Page    int
	PerPage int
	Filters map[string]string
}

// Empty is the payload type of responses that carry only a message
type Empty = json.RawMessage
