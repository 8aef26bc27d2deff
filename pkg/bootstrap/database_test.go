package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userbus/internal/config"
	"userbus/internal/logger"
)

func TestPostgresDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.PostgresConfig
		want string
	}{
		{
			name: "plain",
			cfg:  config.PostgresConfig{Host: "db", Port: 5432, User: "userbus", Password: "secret", DBName: "userbus", SSLMode: "disable"},
			want: "postgres://userbus:secret@db:5432/userbus?sslmode=disable",
		},
		{
			name: "escaped password without sslmode",
			cfg:  config.PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p@ss/word", DBName: "archive"},
			want: "postgres://u:p%40ss%2Fword@db:5433/archive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PostgresDSN(tt.cfg))
		})
	}
}

func TestDatabaseConnector_OptionalStores(t *testing.T) {
	dc := NewDatabaseConnector(&config.Config{}, logger.NopLogger())

	db, err := dc.InitPostgreSQL(context.Background())
	require.NoError(t, err)
	assert.Nil(t, db)

	client, err := dc.InitMongoDB(context.Background())
	require.NoError(t, err)
	assert.Nil(t, client)

	assert.Empty(t, dc.ShutdownDatabases(context.Background(), nil, nil, nil))
}
