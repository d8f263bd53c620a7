// Command sonctl exercises the son package's container engine from the
// shell: create, append, read, edit, export, and the message send/recv
// pair over a TCP connection.
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/StratifyLabs/son-go/message"
	"github.com/StratifyLabs/son-go/son"
	"github.com/StratifyLabs/son-go/sonjson"
)

const defaultStackSize = 16

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "sonctl",
		Short: "inspect and build SON containers",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				l, _ := zap.NewDevelopment()
				son.SetLogger(l)
				message.SetLogger(l)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable diagnostic logging")

	root.AddCommand(newCreateCmd(), newAppendCmd(), newReadCmd(), newEditCmd(), newExportCmd(), newSendCmd(), newRecvCmd())
	return root
}

// field is one --set key=type:value assignment, e.g. count=unum:7.
type field struct {
	key   string
	kind  string
	value string
}

func parseField(raw string) (field, error) {
	eq := strings.IndexByte(raw, '=')
	if eq < 0 {
		return field{}, fmt.Errorf("--set %q: expected key=type:value", raw)
	}
	key, rest := raw[:eq], raw[eq+1:]
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return field{}, fmt.Errorf("--set %q: expected key=type:value", raw)
	}
	return field{key: key, kind: rest[:colon], value: rest[colon+1:]}, nil
}

func writeField(h *son.Handle, f field) error {
	switch f.kind {
	case "str":
		return h.WriteStr(f.key, f.value)
	case "num":
		n, err := strconv.ParseInt(f.value, 10, 32)
		if err != nil {
			return err
		}
		return h.WriteNum(f.key, int32(n))
	case "unum":
		n, err := strconv.ParseUint(f.value, 10, 32)
		if err != nil {
			return err
		}
		return h.WriteUnum(f.key, uint32(n))
	case "float":
		n, err := strconv.ParseFloat(f.value, 32)
		if err != nil {
			return err
		}
		return h.WriteFloat(f.key, float32(n))
	case "true":
		return h.WriteTrue(f.key)
	case "false":
		return h.WriteFalse(f.key)
	case "null":
		return h.WriteNull(f.key)
	case "data":
		b, err := base64.StdEncoding.DecodeString(f.value)
		if err != nil {
			return err
		}
		return h.WriteData(f.key, b)
	default:
		return fmt.Errorf("unknown field type %q", f.kind)
	}
}

func writeFields(h *son.Handle, raw []string) error {
	for _, r := range raw {
		f, err := parseField(r)
		if err != nil {
			return err
		}
		if err := writeField(h, f); err != nil {
			return fmt.Errorf("field %s: %w", f.key, err)
		}
	}
	return nil
}

func newCreateCmd() *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:   "create FILE",
		Short: "create a new container with a flat OBJECT root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := son.Create(afero.NewOsFs(), args[0], defaultStackSize)
			if err != nil {
				return err
			}
			if err := h.OpenObj(""); err != nil {
				return err
			}
			if err := writeFields(h, sets); err != nil {
				return err
			}
			if err := h.CloseObj(); err != nil {
				return err
			}
			return h.Close()
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "key=type:value, repeatable")
	return cmd
}

func newAppendCmd() *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:   "append FILE",
		Short: "append sibling values to a sealed container's root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := son.Append(afero.NewOsFs(), args[0], defaultStackSize)
			if err != nil {
				return err
			}
			if err := writeFields(h, sets); err != nil {
				return err
			}
			return h.Close()
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "key=type:value, repeatable")
	return cmd
}

func newReadCmd() *cobra.Command {
	var as string
	cmd := &cobra.Command{
		Use:   "read FILE ACCESS",
		Short: "read one value by its access string",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := son.Open(afero.NewOsFs(), args[0])
			if err != nil {
				return err
			}
			defer h.Close()

			switch as {
			case "str":
				buf := make([]byte, 256)
				n, err := h.ReadStr(args[1], buf)
				if err != nil {
					return err
				}
				fmt.Println(string(buf[:n]))
			case "num":
				v, err := h.ReadNum(args[1])
				if err != nil {
					return err
				}
				fmt.Println(v)
			case "unum":
				v, err := h.ReadUnum(args[1])
				if err != nil {
					return err
				}
				fmt.Println(v)
			case "float":
				v, err := h.ReadFloat(args[1])
				if err != nil {
					return err
				}
				fmt.Println(v)
			case "bool":
				v, err := h.ReadBool(args[1])
				if err != nil {
					return err
				}
				fmt.Println(v)
			case "data":
				buf := make([]byte, 4096)
				n, err := h.ReadData(args[1], buf)
				if err != nil {
					return err
				}
				fmt.Println(base64.StdEncoding.EncodeToString(buf[:n]))
			default:
				return fmt.Errorf("unknown --as %q", as)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&as, "as", "str", "str|num|unum|float|bool|data")
	return cmd
}

func editValue(h *son.Handle, access, kind, value string) error {
	switch kind {
	case "str":
		return h.EditStr(access, value)
	case "num":
		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return err
		}
		return h.EditNum(access, int32(n))
	case "unum":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return err
		}
		return h.EditUnum(access, uint32(n))
	case "float":
		n, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return err
		}
		return h.EditFloat(access, float32(n))
	case "true":
		return h.EditBool(access, true)
	case "false":
		return h.EditBool(access, false)
	case "data":
		b, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return err
		}
		return h.EditData(access, b)
	default:
		return fmt.Errorf("unknown field type %q", kind)
	}
}

func newEditCmd() *cobra.Command {
	var kind, value string
	cmd := &cobra.Command{
		Use:   "edit FILE ACCESS",
		Short: "rewrite one value in place",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := son.Edit(afero.NewOsFs(), args[0])
			if err != nil {
				return err
			}
			defer h.Close()

			return editValue(h, args[1], kind, value)
		},
	}
	cmd.Flags().StringVar(&kind, "type", "str", "str|num|unum|float|true|false|data")
	cmd.Flags().StringVar(&value, "value", "", "the new value")
	return cmd
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export FILE",
		Short: "render a container as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := son.Open(afero.NewOsFs(), args[0])
			if err != nil {
				return err
			}
			defer h.Close()

			out, err := sonjson.Export(h)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func newSendCmd() *cobra.Command {
	var addr string
	var timeoutMs int
	cmd := &cobra.Command{
		Use:   "send FILE",
		Short: "send a sealed container's bytes to a listening recv peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := afero.ReadFile(afero.NewOsFs(), args[0])
			if err != nil {
				return err
			}
			h, err := son.OpenMessage(raw)
			if err != nil {
				return err
			}
			defer h.Close()

			conn, err := net.Dial("tcp", addr)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutMs)*time.Millisecond)
			defer cancel()
			return message.Send(ctx, conn, h, timeoutMs)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:9123", "recv peer address")
	cmd.Flags().IntVar(&timeoutMs, "timeout-ms", 2000, "inter-chunk transfer timeout")
	return cmd
}

func newRecvCmd() *cobra.Command {
	var addr, out string
	var capacity, timeoutMs int
	cmd := &cobra.Command{
		Use:   "recv",
		Short: "listen for one message and write its payload to FILE",
		RunE: func(cmd *cobra.Command, args []string) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			defer ln.Close()

			conn, err := ln.Accept()
			if err != nil {
				return err
			}
			defer conn.Close()

			buf := make([]byte, capacity)
			h, err := son.OpenMessage(buf)
			if err != nil {
				return err
			}
			defer h.Close()

			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutMs)*time.Millisecond)
			defer cancel()
			n, err := message.Recv(ctx, conn, h, timeoutMs)
			if err != nil {
				return err
			}
			return afero.WriteFile(afero.NewOsFs(), out, buf[:n], 0o644)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:9123", "address to listen on")
	cmd.Flags().StringVar(&out, "out", "received.son", "output file for the received payload")
	cmd.Flags().IntVar(&capacity, "capacity", 4096, "receive buffer capacity")
	cmd.Flags().IntVar(&timeoutMs, "timeout-ms", 2000, "inter-chunk transfer timeout")
	return cmd
}
