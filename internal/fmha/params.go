package fmha

import "github.com/samcharles93/fmha/internal/dnn"

// Buffers are the device buffers of one invocation. Mask and Bias may be the
// null DeviceMemory.
type Buffers struct {
	LhsBMM1 dnn.DeviceMemory
	RhsBMM1 dnn.DeviceMemory
	RhsBMM2 dnn.DeviceMemory
	Output  dnn.DeviceMemory
	Mask    dnn.DeviceMemory
	Bias    dnn.DeviceMemory
}

// Params binds a Config to the buffers of one call. Config is not owned and
// must outlive the Params.
type Params struct {
	Config *Config

	LhsBMM1 dnn.DeviceMemory
	RhsBMM1 dnn.DeviceMemory
	RhsBMM2 dnn.DeviceMemory
	Output  dnn.DeviceMemory

	Mask *dnn.DeviceMemory
	Bias *dnn.DeviceMemory
}

// ParamsFor binds bufs to cfg. A mask or bias buffer must be non-null exactly
// when cfg carries the matching descriptor.
func ParamsFor(cfg *Config, bufs Buffers) (*Params, error) {
	p := &Params{
		Config:  cfg,
		LhsBMM1: bufs.LhsBMM1,
		RhsBMM1: bufs.RhsBMM1,
		RhsBMM2: bufs.RhsBMM2,
		Output:  bufs.Output,
	}
	var err error
	if p.Mask, err = bindOptional("mask", cfg.Mask != nil, bufs.Mask, cfg.Kind); err != nil {
		return nil, err
	}
	if p.Bias, err = bindOptional("bias", cfg.Bias != nil, bufs.Bias, cfg.Kind); err != nil {
		return nil, err
	}
	return p, nil
}

func bindOptional(name string, required bool, buf dnn.DeviceMemory, kind Kind) (*dnn.DeviceMemory, error) {
	switch {
	case required && buf.IsNull():
		return nil, inconsistentBinding(kind.String() + " requires a " + name + " buffer")
	case !required && !buf.IsNull():
		return nil, inconsistentBinding(kind.String() + " does not take a " + name + " buffer")
	case required:
		return &buf, nil
	default:
		return nil, nil
	}
}
