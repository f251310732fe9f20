package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/arylic-gateway/internal/bridges/arylic"
)

// decodedFrame is the JSON form printed by the decode command.
type decodedFrame struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

func newEncodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode <command> [arg]",
		Short: "Print the wire frame for a command",
		Long: `Print the framed bytes the gateway would send for a command, as hex.

Commands: play, pause, playpause [PLAY|PAUSE], volume <0-100>, mute, unmute,
volume_on_off <ON|OFF>, device-info, metadata, status, play-status.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var arg string
			if len(args) == 2 {
				arg = args[1]
			}
			sent, err := arylic.ParseCommand(args[0], arg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), arylic.FormatHex(arylic.Encode(sent)))
			return nil
		},
	}
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <hex...>",
		Short: "Decode a captured frame",
		Long: `Decode one frame given as hex pairs and print the resulting message as JSON.

Whitespace and 0x prefixes are ignored. Nothing is printed when the frame is
rejected or its payload is not recognised.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := arylic.ParseHex(strings.Join(args, " "))
			if err != nil {
				return err
			}

			var encodeErr error
			arylic.NewCodec().Decode(data, func(rc arylic.ReceiveCommand) {
				out, err := json.Marshal(decodedFrame{Kind: rc.Kind().String(), Data: rc})
				if err != nil {
					encodeErr = fmt.Errorf("encoding result: %w", err)
					return
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			})
			return encodeErr
		},
	}
}
