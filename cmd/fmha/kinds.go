package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fmha/internal/fmha"
)

func kindsCmd() *cli.Command {
	return &cli.Command{
		Name:  "kinds",
		Usage: "List attention kinds and the inputs each needs",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Printf("%-32s %-24s %s\n", "KIND", "FAMILY", "INPUTS")
			for _, k := range fmha.Kinds() {
				fmt.Printf("%-32s %-24s %s\n", k, k.Family(), kindInputs(k.Requirements()))
			}
			return nil
		},
	}
}

func kindInputs(req fmha.Requirements) string {
	s := "q,k,v"
	if req.Scale {
		s += ",scale"
	}
	if req.Bias {
		s += ",bias"
	}
	if req.Mask {
		s += ",mask"
	}
	if req.Dropout {
		s += ",dropout"
	}
	return s
}
