package fmha

import (
	"fmt"
	"strings"
)

// Kind is the attention variant a descriptor was fused from.
type Kind int

const (
	KindInvalid Kind = iota
	BmmBmm
	Softmax
	SoftmaxDropout
	ScaleBiasSoftmax
	ScaleBiasSoftmaxDropout
	ScaleMaskSoftmax
	ScaleMaskSoftmaxDropout
	ScaleBiasMaskSoftmax
	ScaleBiasMaskSoftmaxDropout
)

// Family is the kernel family a Runner is bound to.
type Family int

const (
	FamilyUnselected Family = iota
	FamilySoftmax
	FamilyScaleMask
	FamilyScaleBias
	FamilyScaleBiasMask
)

// Requirements lists which optional Config fields a kind carries.
type Requirements struct {
	Scale   bool
	Mask    bool
	Bias    bool
	Dropout bool
}

type kindInfo struct {
	name   string
	family Family
	req    Requirements
}

var kinds = map[Kind]kindInfo{
	BmmBmm:                      {"bmm_bmm", FamilySoftmax, Requirements{}},
	Softmax:                     {"softmax", FamilySoftmax, Requirements{}},
	SoftmaxDropout:              {"softmax_dropout", FamilySoftmax, Requirements{Dropout: true}},
	ScaleBiasSoftmax:            {"scale_bias_softmax", FamilyScaleBias, Requirements{Scale: true, Bias: true}},
	ScaleBiasSoftmaxDropout:     {"scale_bias_softmax_dropout", FamilyScaleBias, Requirements{Scale: true, Bias: true, Dropout: true}},
	ScaleMaskSoftmax:            {"scale_mask_softmax", FamilyScaleMask, Requirements{Scale: true, Mask: true}},
	ScaleMaskSoftmaxDropout:     {"scale_mask_softmax_dropout", FamilyScaleMask, Requirements{Scale: true, Mask: true, Dropout: true}},
	ScaleBiasMaskSoftmax:        {"scale_bias_mask_softmax", FamilyScaleBiasMask, Requirements{Scale: true, Mask: true, Bias: true}},
	ScaleBiasMaskSoftmaxDropout: {"scale_bias_mask_softmax_dropout", FamilyScaleBiasMask, Requirements{Scale: true, Mask: true, Bias: true, Dropout: true}},
}

// Kinds returns every valid kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kinds))
	for k := BmmBmm; k <= ScaleBiasMaskSoftmaxDropout; k++ {
		out = append(out, k)
	}
	return out
}

func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Requirements returns the optional fields the kind needs. Invalid kinds
// need nothing.
func (k Kind) Requirements() Requirements {
	return kinds[k].req
}

// Family maps the kind to its kernel family, FamilyUnselected if invalid.
func (k Kind) Family() Family {
	return kinds[k].family
}

// ParseKind accepts the names printed by Kind.String, with '-' or '_'.
func ParseKind(s string) (Kind, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for k, info := range kinds {
		if info.name == name {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("unknown fused mha kind %q", s)
}

func (f Family) String() string {
	switch f {
	case FamilySoftmax:
		return "softmax"
	case FamilyScaleMask:
		return "scale_mask_softmax"
	case FamilyScaleBias:
		return "scale_bias_softmax"
	case FamilyScaleBiasMask:
		return "scale_bias_mask_softmax"
	default:
		return "unselected"
	}
}
