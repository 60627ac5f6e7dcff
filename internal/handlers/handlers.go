package handlers

import (
	"github.com/bpepple/clu-comics-sub000/internal/library"
)

type Handlers struct {
	lib *library.Library
}

func New(lib *library.Library) *Handlers {
	return &Handlers{lib: lib}
}
