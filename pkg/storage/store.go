package storage

import (
	"errors"

	"github.com/cuemby/hypernet/pkg/types"
)

// ErrNotFound is returned when no cube is stored under a name
var ErrNotFound = errors.New("not found")

// Store persists launched cubes so separate CLI invocations can find them
type Store interface {
	SaveCube(cube *types.Cube) error
	GetCube(name string) (*types.Cube, error)
	ListCubes() ([]*types.Cube, error)
	DeleteCube(name string) error

	// UpdateNode replaces one node's record inside a stored cube
	UpdateNode(name string, node types.NodeRecord) error

	Close() error
}
