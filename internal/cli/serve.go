package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/david/licitacoes/internal/api"
	"github.com/david/licitacoes/internal/auth"
	"github.com/david/licitacoes/internal/browse"
	"github.com/david/licitacoes/internal/db"
	"github.com/david/licitacoes/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the clean snapshot over HTTP with login, filtering and Excel export",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := db.Paths{Dir: viper.GetString("snapshot.dir")}
		ds, err := db.LoadSnapshot(cmd.Context(), paths.CleanSQLite())
		if err != nil {
			return err
		}
		logging.Log.Infof("Loaded %d records from %s", ds.Len(), paths.CleanSQLite())

		users, err := loadUsers(viper.GetViper())
		if err != nil {
			return err
		}
		store := auth.NewCredentialStore(users)
		if store.Len() == 0 {
			logging.Log.Warn("No users configured under auth.users; every login will be rejected")
		}
		authService, err := auth.NewService(store, viper.GetString("auth.jwt_secret"))
		if err != nil {
			return err
		}

		srv := api.NewServer(ds, authService, browse.DefaultConfig())
		port := viper.GetString("server.port")
		logging.Log.Infof("Server starting on port %s...", port)
		return srv.Start(port)
	},
}

// userEntry is one item of the auth.users list. A list is used instead of a
// map because viper lowercases map keys.
type userEntry struct {
	Username string `mapstructure:"username"`
	Hash     string `mapstructure:"hash"`
}

// loadUsers returns the configured bcrypt hashes keyed by exact username.
func loadUsers(v *viper.Viper) (map[string]string, error) {
	var entries []userEntry
	if err := v.UnmarshalKey("auth.users", &entries); err != nil {
		return nil, fmt.Errorf("reading auth.users: %w", err)
	}
	users := make(map[string]string, len(entries))
	for _, e := range entries {
		if _, dup := users[e.Username]; dup {
			return nil, fmt.Errorf("auth.users: duplicate username %q", e.Username)
		}
		users[e.Username] = e.Hash
	}
	return users, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8081", "Port to listen on")
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
