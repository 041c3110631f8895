package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"LinkFM/codec"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <encoded-track>",
	Short: "Decode an encoded track handle",
	Long:  `Decodes a base64 track handle locally and prints its metadata as JSON.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		info, err := codec.DecodeTrack(args[0])
		if err != nil {
			log.Fatalf("failed to decode track: %v", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(info.ToModel()); err != nil {
			log.Fatalf("failed to print track info: %v", err)
		}
		fmt.Fprintf(os.Stderr, "track format version %d\n", info.Version)
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}
