package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loykin/cgirun/internal/util"
	"github.com/loykin/cgirun/pkg/request"
	"github.com/loykin/cgirun/pkg/response"
	"github.com/loykin/cgirun/pkg/task"
)

type requestFlags struct {
	params  []string
	options []string
	files   []string
	auth    string
	include bool
	dumpEnv bool
}

var (
	getFlags  requestFlags
	postFlags requestFlags
)

var getCmd = newRequestCmd(http.MethodGet, &getFlags)

var postCmd = newRequestCmd(http.MethodPost, &postFlags)

func newRequestCmd(method string, f *requestFlags) *cobra.Command {
	lower := strings.ToLower(method)
	cmd := &cobra.Command{
		Use:   lower + " <script>",
		Short: fmt.Sprintf("Send one %s request to a script and print the response", method),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, method, args[0], f)
		},
	}
	fl := cmd.Flags()
	fl.StringArrayVar(&f.params, "param", nil, "request parameter name=value (repeatable, order is kept)")
	fl.StringArrayVar(&f.options, "option", nil, "CGI variable override NAME=VALUE (repeatable)")
	fl.StringVar(&f.auth, "auth", "", "configured auth name sent as HTTP_AUTHORIZATION")
	fl.BoolVarP(&f.include, "include", "i", false, "print response headers")
	fl.BoolVar(&f.dumpEnv, "dump-env", false, "print the harness environment to stderr")
	if method != http.MethodGet {
		fl.StringArrayVar(&f.files, "file", nil, "upload field=path[;type=mime][;filename=name] (repeatable)")
	}
	return cmd
}

// buildRequestSpec turns command line flags into a scenario step request so
// one-off requests get the same templating and auth handling.
func buildRequestSpec(method, script string, f *requestFlags) (task.RequestSpec, error) {
	rs := task.RequestSpec{Method: method, Script: script, AuthName: strings.TrimSpace(f.auth)}
	for _, p := range f.params {
		k, v, err := util.SplitKeyValue(p)
		if err != nil {
			return task.RequestSpec{}, fmt.Errorf("--param: %w", err)
		}
		rs.Params = append(rs.Params, request.Param{Name: k, Value: v})
	}
	for _, o := range f.options {
		k, v, err := util.SplitKeyValue(o)
		if err != nil {
			return task.RequestSpec{}, fmt.Errorf("--option: %w", err)
		}
		if rs.Options == nil {
			rs.Options = map[string]string{}
		}
		rs.Options[k] = v
	}
	for _, fs := range f.files {
		spec, err := parseFileFlag(fs)
		if err != nil {
			return task.RequestSpec{}, err
		}
		rs.Files = append(rs.Files, spec)
	}
	return rs, nil
}

// parseFileFlag parses field=path[;type=mime][;filename=name].
func parseFileFlag(s string) (task.FileSpec, error) {
	parts := strings.Split(s, ";")
	field, path, err := util.SplitKeyValue(parts[0])
	if err != nil {
		return task.FileSpec{}, fmt.Errorf("--file: %w", err)
	}
	if strings.TrimSpace(path) == "" {
		return task.FileSpec{}, fmt.Errorf("--file %q: empty path", s)
	}
	out := task.FileSpec{Field: field, Path: path}
	for _, attr := range parts[1:] {
		k, v, err := util.SplitKeyValue(attr)
		if err != nil {
			return task.FileSpec{}, fmt.Errorf("--file %q: %w", s, err)
		}
		switch util.TrimAndLower(k) {
		case "type":
			out.Type = strings.TrimSpace(v)
		case "filename":
			out.Filename = strings.TrimSpace(v)
		default:
			return task.FileSpec{}, fmt.Errorf("--file %q: unknown attribute %q", s, k)
		}
	}
	return out, nil
}

func runRequest(cmd *cobra.Command, method, script string, f *requestFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	doc, _, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	rs, err := buildRequestSpec(method, script, f)
	if err != nil {
		return err
	}
	e, err := doc.GetEnv()
	if err != nil {
		return err
	}
	if err := doc.DecodeAuth(ctx, e); err != nil {
		return err
	}

	t, err := doc.NewTester()
	if err != nil {
		return err
	}
	defer func() { _ = t.Close() }()

	spec, err := rs.Build(ctx, t, e, ".")
	if err != nil {
		return err
	}
	if f.dumpEnv {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), t.EnvString())
	}
	resp, err := t.Do(ctx, spec)
	if err != nil {
		return err
	}
	return writeResponse(cmd.OutOrStdout(), resp, f.include)
}

func writeResponse(w io.Writer, resp *response.Response, include bool) error {
	if _, err := fmt.Fprintf(w, "%s %s\n", resp.Proto, resp.Status()); err != nil {
		return err
	}
	if include {
		for _, h := range resp.Headers {
			if _, err := fmt.Fprintf(w, "%s: %s\n", h.Name, h.Value); err != nil {
				return err
			}
		}
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	_, err := w.Write(resp.Body)
	return err
}
