package host

import (
	"fmt"

	"github.com/samcharles93/fmha/internal/dnn"
	"github.com/samcharles93/fmha/internal/logger"
	"github.com/samcharles93/fmha/internal/shape"
)

// Support builds host kernels. Only algorithm 0 exists.
type Support struct {
	log logger.Logger
}

type family int

const (
	familySoftmax family = iota
	familyScaleMask
	familyScaleBias
	familyScaleBiasMask
)

func (f family) String() string {
	switch f {
	case familySoftmax:
		return "softmax"
	case familyScaleMask:
		return "scale_mask_softmax"
	case familyScaleBias:
		return "scale_bias_softmax"
	case familyScaleBiasMask:
		return "scale_bias_mask_softmax"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

func (f family) hasMask() bool { return f == familyScaleMask || f == familyScaleBiasMask }
func (f family) hasBias() bool { return f == familyScaleBias || f == familyScaleBiasMask }

func (s *Support) FusedMHASoftmaxRunnerFromDesc(stream dnn.Stream, desc dnn.AlgorithmDesc, cfg dnn.FusedMHAOpConfig) (dnn.Kernel[dnn.SoftmaxArgs], error) {
	return newKernel[dnn.SoftmaxArgs](s, familySoftmax, desc, cfg)
}

func (s *Support) FusedMHAScaleMaskSoftmaxRunnerFromDesc(stream dnn.Stream, desc dnn.AlgorithmDesc, cfg dnn.FusedMHAOpConfig) (dnn.Kernel[dnn.ScaleMaskSoftmaxArgs], error) {
	return newKernel[dnn.ScaleMaskSoftmaxArgs](s, familyScaleMask, desc, cfg)
}

func (s *Support) FusedMHAScaleBiasSoftmaxRunnerFromDesc(stream dnn.Stream, desc dnn.AlgorithmDesc, cfg dnn.FusedMHAOpConfig) (dnn.Kernel[dnn.ScaleBiasSoftmaxArgs], error) {
	return newKernel[dnn.ScaleBiasSoftmaxArgs](s, familyScaleBias, desc, cfg)
}

func (s *Support) FusedMHAScaleBiasMaskSoftmaxRunnerFromDesc(stream dnn.Stream, desc dnn.AlgorithmDesc, cfg dnn.FusedMHAOpConfig) (dnn.Kernel[dnn.ScaleBiasMaskSoftmaxArgs], error) {
	return newKernel[dnn.ScaleBiasMaskSoftmaxArgs](s, familyScaleBiasMask, desc, cfg)
}

func newKernel[A dnn.Args](s *Support, fam family, desc dnn.AlgorithmDesc, cfg dnn.FusedMHAOpConfig) (dnn.Kernel[A], error) {
	if err := checkOpConfig(fam, desc, cfg); err != nil {
		return nil, err
	}
	s.log.Debug("built host kernel", "family", fam.String(), "algorithm", desc.String())
	return &kernel[A]{family: fam, desc: desc.Clone(), cfg: cfg}, nil
}

func checkOpConfig(fam family, desc dnn.AlgorithmDesc, cfg dnn.FusedMHAOpConfig) error {
	if desc.ID != 0 {
		return fmt.Errorf("%w: host has no algorithm %d", dnn.ErrUnsupported, desc.ID)
	}
	elem := cfg.LhsBMM1.Tensor.Type
	switch elem {
	case shape.F16, shape.BF16, shape.F32:
	default:
		return fmt.Errorf("%w: host kernels do not take %s", dnn.ErrUnsupported, elem)
	}
	for _, t := range []shape.PrimitiveType{
		cfg.RhsBMM1.Tensor.Type,
		cfg.RhsBMM2.Tensor.Type,
		cfg.IntermediateLhsBMM2.Tensor.Type,
		cfg.Output.Type,
	} {
		if t != elem {
			return fmt.Errorf("%w: mixed element types %s and %s", dnn.ErrUnsupported, elem, t)
		}
	}
	if fam.hasMask() != (cfg.Mask != nil) {
		return fmt.Errorf("%w: %s kernel mask descriptor mismatch", dnn.ErrInvalidArgument, fam)
	}
	if fam.hasBias() != (cfg.Bias != nil) {
		return fmt.Errorf("%w: %s kernel bias descriptor mismatch", dnn.ErrInvalidArgument, fam)
	}
	if cfg.Mask != nil && cfg.Mask.Type.ByteSize() == 0 {
		return fmt.Errorf("%w: mask type %s", dnn.ErrUnsupported, cfg.Mask.Type)
	}
	if cfg.Bias != nil && !cfg.Bias.Type.IsFloat() {
		return fmt.Errorf("%w: bias type %s", dnn.ErrUnsupported, cfg.Bias.Type)
	}
	if cfg.BMMOnly && (cfg.Mask != nil || cfg.Bias != nil || cfg.DropoutRate != nil) {
		return fmt.Errorf("%w: bmm-only kernel with epilogue inputs", dnn.ErrInvalidArgument)
	}
	if _, err := bmm2BatchOrder(cfg); err != nil {
		return err
	}
	if cfg.DropoutRate != nil && (*cfg.DropoutRate < 0 || *cfg.DropoutRate >= 1) {
		return fmt.Errorf("%w: dropout rate %v", dnn.ErrInvalidArgument, *cfg.DropoutRate)
	}
	return nil
}
