package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var roomsCmd = &cobra.Command{
	Use:     "rooms",
	Aliases: []string{"ls"},
	Short:   "List active rooms",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		l, err := newLobby(cfg.ServerURL)
		if err != nil {
			return err
		}
		rooms, err := l.rooms(cmd.Context())
		if err != nil {
			return err
		}
		if len(rooms) == 0 {
			fmt.Println(MutedStyle.Render("No active rooms"))
			return nil
		}
		fmt.Println(roomsTable(rooms))
		return nil
	},
}

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a room id to share",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		l, err := newLobby(cfg.ServerURL)
		if err != nil {
			return err
		}
		room, err := l.newRoom(cmd.Context())
		if err != nil {
			return err
		}
		PrintSuccess(fmt.Sprintf("%s %s", IconRoom, TitleStyle.Render(string(room.ID))))
		PrintInfof("join with: meet join %s", room.ID)
		return nil
	},
}
