package main

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/looproom/looproom"
	"github.com/looproom/looproom/store"
)

var roomCmd = &cobra.Command{
	Use:   "room",
	Short: "Exchange sessions with a shared room store",
}

var roomPushCmd = &cobra.Command{
	Use:   "push <roomID> <session.yaml>",
	Short: "Upload a session file to a room",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		session, err := looproom.ReadSessionFile(args[1])
		if err != nil {
			return err
		}
		if err := s.SaveSession(context.Background(), args[0], &session); err != nil {
			return err
		}
		logger.Info().Str("room", args[0]).Msg("session pushed")
		return nil
	},
}

var roomPullCmd = &cobra.Command{
	Use:   "pull <roomID> <session.yaml>",
	Short: "Download a room's session into a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		session, err := s.LoadSession(context.Background(), args[0])
		if err != nil {
			return err
		}
		if err := looproom.WriteSessionFile(args[1], &session); err != nil {
			return err
		}
		logger.Info().Str("room", args[0]).Str("file", args[1]).Msg("session pulled")
		return nil
	},
}

func init() {
	roomCmd.AddCommand(roomPushCmd, roomPullCmd)
	rootCmd.AddCommand(roomCmd)
}

func openStore() (*store.Store, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("set LOOPROOM_REDIS_ADDR to use room commands")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return store.New(client, logger), nil
}
