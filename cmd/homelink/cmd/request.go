package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tsarna/homelink/pkg/homelink/request"
)

// requestCmd represents the request command
var requestCmd = &cobra.Command{
	Use:   "request <method> <path> [body]",
	Short: "Call the HTTP API",
	Long: `Send one request to the HTTP API and print the response body.

The stored token is sent as a bearer token unless --anonymous is given.
503 responses and network failures are retried; other failures are
printed as notifications.

Examples:
  homelink request GET /api/devices
  homelink request PUT /api/devices/7 '{"name":"lamp"}'
  homelink request POST /api/backups --field title=nightly --file archive=./backup.tar
  homelink request POST /api/token -e url --field user=admin --anonymous`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runRequest,
}

var (
	requestEncoding  string
	requestAnonymous bool
	requestFields    []string
	requestFiles     []string
	requestQuery     []string
	requestHeaders   []string
	requestOutput    string
)

func init() {
	rootCmd.AddCommand(requestCmd)

	requestCmd.Flags().StringVarP(&requestEncoding, "encoding", "e", "json", "body encoding (json, url, raw, multipart)")
	requestCmd.Flags().BoolVar(&requestAnonymous, "anonymous", false, "do not send the stored token")
	requestCmd.Flags().StringArrayVar(&requestFields, "field", nil, "body field key=value; values are parsed as JSON when possible")
	requestCmd.Flags().StringArrayVar(&requestFiles, "file", nil, "multipart file name=path")
	requestCmd.Flags().StringArrayVarP(&requestQuery, "query", "q", nil, "query parameter key=value")
	requestCmd.Flags().StringArrayVarP(&requestHeaders, "header", "H", nil, "request header key=value")
	requestCmd.Flags().StringVarP(&requestOutput, "output", "o", "json", "output format (json, yaml)")
}

func runRequest(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(requestOutput)
	if err != nil {
		return err
	}

	desc, err := buildDescriptor(args)
	if err != nil {
		return err
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	client, err := rt.requestClient()
	if err != nil {
		return err
	}

	resp, err := client.Execute(cmd.Context(), desc)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) == 0 {
		return nil
	}
	return writeBody(rt.out, body, format)
}

func buildDescriptor(args []string) (request.Descriptor, error) {
	desc := request.Descriptor{
		Method:    strings.ToUpper(args[0]),
		Path:      args[1],
		Encoding:  request.Encoding(requestEncoding),
		Anonymous: requestAnonymous,
	}

	if len(args) == 3 {
		if len(requestFields) > 0 {
			return desc, fmt.Errorf("a body argument cannot be combined with --field")
		}
		desc.Body = args[2]
	}

	if len(requestFields) > 0 {
		fields := make(map[string]any, len(requestFields))
		for _, f := range requestFields {
			k, v, err := splitPair(f, "--field")
			if err != nil {
				return desc, err
			}
			fields[k] = fieldValue(v, desc.Encoding)
		}
		desc.Body = fields
	}

	if len(requestFiles) > 0 {
		desc.Files = make(map[string]request.File, len(requestFiles))
		for _, f := range requestFiles {
			name, path, err := splitPair(f, "--file")
			if err != nil {
				return desc, err
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return desc, fmt.Errorf("failed to read %s: %w", path, err)
			}
			desc.Files[name] = request.File{Filename: filepath.Base(path), Content: content}
		}
	}

	if len(requestQuery) > 0 {
		desc.Query = url.Values{}
		for _, q := range requestQuery {
			k, v, err := splitPair(q, "--query")
			if err != nil {
				return desc, err
			}
			desc.Query.Add(k, v)
		}
	}

	if len(requestHeaders) > 0 {
		desc.Headers = make(map[string]string, len(requestHeaders))
		for _, h := range requestHeaders {
			k, v, err := splitPair(h, "--header")
			if err != nil {
				return desc, err
			}
			desc.Headers[k] = v
		}
	}

	return desc, nil
}

// fieldValue keeps url fields as text; other encodings get JSON values.
func fieldValue(v string, enc request.Encoding) any {
	if enc == request.EncodingURL {
		return v
	}
	var parsed any
	if err := json.Unmarshal([]byte(v), &parsed); err != nil {
		return v
	}
	return parsed
}

func splitPair(s, flag string) (string, string, error) {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return "", "", fmt.Errorf("%s expects key=value, got %q", flag, s)
	}
	return k, v, nil
}
