package main

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/transcoder/internal/netx"
	"github.com/dmitrijs2005/transcoder/internal/server/services"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newPutCommand() *cobra.Command {
	var (
		serverURL string
		token     string
	)

	cmd := &cobra.Command{
		Use:   "put FILE",
		Short: "Upload a file straight to the object store through a presigned URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("TRANSCODER_TOKEN")
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}

			contentType := mime.TypeByExtension(filepath.Ext(args[0]))
			client := &http.Client{}

			var presigned services.UploadURLResult
			endpoint := strings.TrimRight(serverURL, "/") + "/upload-url"
			body := map[string]string{"filename": filepath.Base(args[0]), "contentType": contentType}
			if err := netx.PostJSON(cmd.Context(), client, endpoint, token, body, &presigned); err != nil {
				return err
			}

			start := time.Now()
			if err := netx.UploadToPresignedURL(cmd.Context(), client, presigned.URL, f, info.Size(), contentType); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%s) as %s in %s\n",
				args[0], humanize.IBytes(uint64(info.Size())), presigned.Key, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "transcoder base URL")
	cmd.Flags().StringVarP(&token, "token", "t", "", "bearer token (defaults to $TRANSCODER_TOKEN)")
	return cmd
}
