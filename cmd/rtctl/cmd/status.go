package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Services []struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	} `json:"services"`
	Uptime struct {
		Human string `json:"human"`
	} `json:"uptime"`
}

type roomsResponse struct {
	Rooms []struct {
		Name      string   `json:"name"`
		UserCount int      `json:"userCount"`
		Users     []string `json:"users"`
	} `json:"rooms"`
	TotalRooms int `json:"totalRooms"`
	TotalUsers int `json:"totalUsers"`
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show service health",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, code, err := NewClient(serverURL).Get("/health", http.StatusServiceUnavailable)
		if err != nil {
			return err
		}

		if output == "json" {
			return printJSON(data)
		}

		var resp healthResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		fmt.Printf("Status: %s, version %s, uptime %s\n\n", resp.Status, resp.Version, resp.Uptime.Human)
		rows := make([][]string, len(resp.Services))
		for i, svc := range resp.Services {
			rows[i] = []string{svc.Name, svc.Status}
		}
		printTable([]string{"SERVICE", "STATE"}, rows)

		if code != http.StatusOK {
			return fmt.Errorf("server is %s", resp.Status)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, _, err := NewClient(serverURL).Get("/api/status")
		if err != nil {
			return err
		}
		return printJSON(data)
	},
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List rooms and their members",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, _, err := NewClient(serverURL).Get("/api/rooms")
		if err != nil {
			return err
		}

		if output == "json" {
			return printJSON(data)
		}

		var resp roomsResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		if len(resp.Rooms) == 0 {
			fmt.Println("No rooms found.")
			return nil
		}

		rows := make([][]string, len(resp.Rooms))
		for i, r := range resp.Rooms {
			rows[i] = []string{r.Name, strconv.Itoa(r.UserCount), strings.Join(r.Users, ",")}
		}
		printTable([]string{"ROOM", "USERS", "MEMBERS"}, rows)
		fmt.Printf("\n%d rooms, %d users\n", resp.TotalRooms, resp.TotalUsers)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(roomsCmd)
}
