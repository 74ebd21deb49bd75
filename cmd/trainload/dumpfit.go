package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucasjlepore/trainload/fitmsg"
	"github.com/lucasjlepore/trainload/ingest"
)

var dumpFITHeader bool

var dumpFITCmd = &cobra.Command{
	Use:   "dump-fit <file.fit|file.zip>",
	Short: "Print the decoded messages of a FIT recording as JSONL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		var (
			data []byte
			err  error
		)
		if strings.EqualFold(filepath.Ext(path), ".zip") {
			data, _, err = ingest.ExtractFIT(path)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return err
		}

		f, err := fitmsg.Decode(data)
		if err != nil {
			return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
		}
		out := cmd.OutOrStdout()
		if dumpFITHeader {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(f)
		}
		for _, w := range f.Warnings() {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
		}
		return fitmsg.WriteJSONL(out, f.Messages)
	},
}

func init() {
	dumpFITCmd.Flags().BoolVar(&dumpFITHeader, "header", false, "Print the header, CRC checks and file id instead of messages")
}
