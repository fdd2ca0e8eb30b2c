package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/mindmesh/internal/profile"
	"github.com/hrygo/mindmesh/store"
	"github.com/hrygo/mindmesh/store/db/postgres"
	"github.com/hrygo/mindmesh/store/db/sqlite"
)

// NewDBDriver creates a new DB driver based on the profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	switch profile.Driver {
	case "sqlite":
		return sqlite.NewDB(profile)
	case "postgres":
		return postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q", profile.Driver)
	}
}
