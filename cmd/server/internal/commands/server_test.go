package commands

import (
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/require"
)

func TestServerCmdDefaults(t *testing.T) {
	var cli struct {
		Server ServerCmd `cmd:""`
	}
	parser, err := kong.New(&cli)
	require.NoError(t, err)

	_, err = parser.Parse([]string{"server", "--keys-jwks-url", "https://idp.example.com/jwks.json"})
	require.NoError(t, err)

	cmd := cli.Server
	require.Equal(t, "memory", cmd.StoreType)
	require.Equal(t, time.Hour, cmd.Keys.RefreshInterval)
	require.Equal(t, 30*time.Second, cmd.Keys.RefreshLimit)
	require.Equal(t, []string{"http://localhost:3000"}, cmd.CORSOrigins)
	require.Equal(t, int32(20), cmd.Postgres.MaxConns)
	require.Equal(t, "dev", cmd.AWS.Environment)
}

func TestServerCmdValidate(t *testing.T) {
	valid := func() ServerCmd {
		return ServerCmd{
			StoreType: "memory",
			Keys:      KeyFlags{JWKSURL: "https://idp.example.com/jwks.json"},
			AWS:       AWSFlags{Region: "us-east-1", Environment: "dev"},
			Postgres:  PostgresFlags{MaxConns: 20, MinConns: 5},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*ServerCmd)
		wantErr string
	}{
		{name: "valid", mutate: func(*ServerCmd) {}},
		{
			name: "jwks derived from user pool",
			mutate: func(c *ServerCmd) {
				c.Keys.JWKSURL = ""
				c.Cognito = CognitoFlags{Region: "ap-southeast-2", UserPoolID: "ap-southeast-2_abc"}
			},
		},
		{
			name:    "no key source",
			mutate:  func(c *ServerCmd) { c.Keys.JWKSURL = "" },
			wantErr: "JWKS URL is required",
		},
		{
			name:    "cert without key",
			mutate:  func(c *ServerCmd) { c.Cert = "cert.pem" },
			wantErr: "--cert and --key",
		},
		{
			name:    "client id without region",
			mutate:  func(c *ServerCmd) { c.Cognito.ClientID = "client" },
			wantErr: "--cognito-region",
		},
		{
			name:    "clean without development",
			mutate:  func(c *ServerCmd) { c.DevelopmentClean = true },
			wantErr: "--development-clean",
		},
		{
			name:    "postgres without connection string",
			mutate:  func(c *ServerCmd) { c.StoreType = "postgres" },
			wantErr: "connection string is required",
		},
		{
			name: "aws with half static credentials",
			mutate: func(c *ServerCmd) {
				c.StoreType = "aws"
				c.AWS.AccessKeyID = "AKIA"
			},
			wantErr: "must be set together",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := valid()
			tt.mutate(&cmd)
			err := cmd.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestCognitoJWKSURL(t *testing.T) {
	c := CognitoFlags{Region: "ap-southeast-2", UserPoolID: "ap-southeast-2_abc"}
	require.Equal(t, "https://cognito-idp.ap-southeast-2.amazonaws.com/ap-southeast-2_abc/.well-known/jwks.json", c.JWKSURL())
}
