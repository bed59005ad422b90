// Package main writes a development CA and a server certificate for the
// DocLedger API under a certs directory. An existing CA in that directory
// is reused so clients that already trust it keep working.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/atinyakov/DocLedger/internal/certgen"
)

type options struct {
	dir   string
	hosts []string
	force bool
}

func run(opts options, out io.Writer) error {
	caCert := filepath.Join(opts.dir, "ca.crt")
	caKey := filepath.Join(opts.dir, "ca.key")

	var ca *certgen.CA
	_, statErr := os.Stat(caCert)
	switch {
	case statErr == nil && !opts.force:
		loaded, err := certgen.LoadCA(caCert, caKey)
		if err != nil {
			return err
		}
		ca = loaded
		fmt.Fprintf(out, "Reusing CA %s\n", caCert)
	case statErr == nil || errors.Is(statErr, os.ErrNotExist):
		generated, err := certgen.GenerateCA("DocLedger Dev CA")
		if err != nil {
			return err
		}
		if err := generated.PEM.Write(caCert, caKey); err != nil {
			return err
		}
		ca = generated
	default:
		return statErr
	}

	server, err := ca.IssueServer(opts.hosts)
	if err != nil {
		return err
	}
	if err := server.Write(filepath.Join(opts.dir, "server.crt"), filepath.Join(opts.dir, "server.key")); err != nil {
		return err
	}
	fmt.Fprintf(out, "✅ Certificates for %s generated into %s\n", strings.Join(opts.hosts, ", "), opts.dir)
	return nil
}

func splitHosts(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

func main() {
	var (
		opts  options
		hosts string
	)
	flag.StringVar(&opts.dir, "dir", "certs", "output directory")
	flag.StringVar(&hosts, "hosts", "localhost,127.0.0.1", "comma separated server names and IPs")
	flag.BoolVar(&opts.force, "force", false, "replace an existing CA")
	flag.Parse()
	opts.hosts = splitHosts(hosts)

	if err := run(opts, os.Stdout); err != nil {
		log.Fatal(err)
	}
}
