// Package api is an annotated client used by analyzer and emitter tests.
package api

import (
	"context"
	"iter"
	"net/http"

	"github.com/broady/apistub"
)

type User struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
}

type Issue struct {
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
}

type Event struct {
	Type string `json:"type"`
}

// Base carries headers shared by every client.
//
//apistub:header User-Agent: apistub-test
//apistub:header Accept: application/json
type Base interface {
	// Ping checks liveness.
	//apistub:get /ping
	Ping(ctx context.Context) error

	//apistub:get /users/{user}
	//apistub:header X-Trace: base
	GetUser(ctx context.Context, user string) (*User, error)
}

// GitHub is a small slice of the GitHub REST API.
//
//apistub:header Accept: application/vnd.github+json
type GitHub interface {
	Base

	// GetUser inherits its verb from Base.
	//apistub:header X-Trace: derived
	GetUser(ctx context.Context, user string) (*User, error)

	//apistub:get /users/{user}/repos
	//apistub:query tags collection=csv
	ListRepos(ctx context.Context, user string, tags []string, page *int) ([]string, error)

	//apistub:post /repos/{owner}/{repo}/issues
	//apistub:body issue json
	//apistub:authorize token token
	CreateIssue(ctx context.Context, owner, repo string, issue *Issue, token string) (apistub.Response[Issue], error)

	//apistub:get /raw/{**path}
	Raw(ctx context.Context, path string) (*http.Response, error)

	//apistub:get /events
	Events(ctx context.Context) iter.Seq2[Event, error]

	//apistub:delete /users/{userID}
	//apistub:path id name=userID
	DeleteUser(ctx context.Context, id int64) error

	//apistub:get /search
	//apistub:headers extra
	//apistub:property trace trace-id
	Search(ctx context.Context, q string, extra map[string]string, trace string) (*apistub.Response[[]User], error)

	//apistub:post /upload
	//apistub:multipart
	Upload(ctx context.Context, name string, file *apistub.FilePart) error

	// Unannotated has no HTTP directive.
	Unannotated(ctx context.Context) error

	Close() error
}

// Store is a generic resource collection.
type Store[T any] interface {
	//apistub:get /items/{id}
	Get(ctx context.Context, id string) (T, error)
}

// Plain has no directives.
type Plain interface {
	Do() error
}
