package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var controlCmd = &cobra.Command{
	Use:   "control NETWORK ADDRESS",
	Short: "Connect to a routerd ControlSocket and issue commands interactively",
	Long: "Connects to a running routerd's ControlSocket (NETWORK is \"tcp\" or\n" +
		"\"unix\") and runs a small REPL: each line typed is sent as one\n" +
		"ControlSocket command, and the response (including any DATA-framed\n" +
		"payload) is printed. Type QUIT or press Ctrl-D to exit.",
	Args: cobra.ExactArgs(2),
	RunE: runControlREPL,
}

func runControlREPL(cmd *cobra.Command, args []string) error {
	network, address := args[0], args[1]
	nc, err := net.Dial(network, address)
	if err != nil {
		return fmt.Errorf("routerd: dialing ControlSocket: %w", err)
	}
	defer nc.Close()

	return runControlSession(nc, os.Stdin, os.Stdout)
}

// runControlSession drives one ControlSocket REPL session over nc, reading
// commands from in and writing the banner plus every response to out. It is
// split out from runControlREPL so it can be exercised with in-memory pipes.
func runControlSession(nc net.Conn, in io.Reader, out io.Writer) error {
	r := bufio.NewReader(nc)

	banner, err := r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("routerd: reading banner: %w", err)
	}
	fmt.Fprint(out, banner)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if _, err := fmt.Fprintf(nc, "%s\n", line); err != nil {
			return fmt.Errorf("routerd: writing command: %w", err)
		}
		isRead := strings.EqualFold(strings.Fields(line)[0], "READ")
		if err := printControlResponse(r, out, isRead); err != nil {
			return err
		}
		if strings.EqualFold(strings.TrimSpace(line), "QUIT") {
			break
		}
	}
	return scanner.Err()
}

// printControlResponse copies one ControlSocket response (a coded line,
// followed, for a successful READ when expectData is set, by a "DATA <n>"
// line and exactly n raw bytes) from r to out.
func printControlResponse(r *bufio.Reader, out io.Writer, expectData bool) error {
	line, err := r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("routerd: reading response: %w", err)
	}
	fmt.Fprint(out, line)
	if !expectData || !strings.HasPrefix(line, "200") {
		return nil
	}

	line, err = r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("routerd: reading DATA line: %w", err)
	}
	fmt.Fprint(out, line)
	trimmed := strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(trimmed, "DATA ") {
		return fmt.Errorf("routerd: expected DATA line, got %q", trimmed)
	}
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(trimmed, "DATA ")))
	if err != nil {
		return fmt.Errorf("routerd: malformed DATA length %q: %w", trimmed, err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("routerd: reading DATA payload: %w", err)
	}
	out.Write(buf)
	return nil
}
