package metrics_test

import (
	"context"
	"database/sql/driver"
	"errors"
)

// nilConnector backs a sql.DB that never opens a connection; only pool stats are read.
type nilConnector struct{}

func (nilConnector) Connect(context.Context) (driver.Conn, error) {
	return nil, errors.New("no connections in tests")
}

func (nilConnector) Driver() driver.Driver { return nilDriver{} }

type nilDriver struct{}

func (nilDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("no connections in tests")
}
