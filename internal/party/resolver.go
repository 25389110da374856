// Package party 从松散的合同记录中判定发包机关与供应商。
package party

import (
	"sort"

	"ContractSync/internal/extract"
	"ContractSync/internal/model"

	"github.com/sirupsen/logrus"
)

// Resolution 角色判定结果，未识别的一方为 model.Unspecified
type Resolution struct {
	Supplier         string
	SupplierICO      string
	Authority        string
	AuthorityAddress string
	// Degraded 只能按名称字典序分配角色
	Degraded   bool
	Candidates []*Candidate
}

// Resolved 至少识别出一方
func (r Resolution) Resolved() bool {
	return r.Supplier != model.Unspecified || r.Authority != model.Unspecified
}

type Resolver struct {
	signals []Signal
	logger  *logrus.Logger
}

func NewResolver(logger *logrus.Logger) *Resolver {
	return NewResolverWithSignals(DefaultSignals(), logger)
}

// NewResolverWithSignals 使用自定义规则表（其他辖区的机构词汇）
func NewResolverWithSignals(signals []Signal, logger *logrus.Logger) *Resolver {
	return &Resolver{signals: append([]Signal(nil), signals...), logger: logger}
}

// Resolve 为记录选出一个发包机关和一个供应商
func (r *Resolver) Resolve(rec extract.Record) Resolution {
	cands := r.Candidates(rec)
	res := Resolution{Candidates: cands}

	authority := pick(cands, RoleAuthority)
	supplier := pick(cands, RoleSupplier)

	// 两个候选方且只识别出一方：另一方补位
	if len(cands) == 2 && (authority == nil) != (supplier == nil) {
		if authority == nil {
			authority = other(cands, supplier)
		} else {
			supplier = other(cands, authority)
		}
	}

	// 只有一个候选方且两方都未识别：按是否公共机构归类
	if len(cands) == 1 && authority == nil && supplier == nil {
		if cands[0].IsPublic {
			authority = cands[0]
		} else {
			supplier = cands[0]
		}
	}

	switch {
	case authority != nil && authority == supplier:
		authority, supplier, res.Degraded = r.breakCollision(cands, authority)
	case authority == nil && supplier == nil && len(cands) >= 2:
		authority, supplier, res.Degraded = r.breakCollision(cands, nil)
	}

	// 供应商像公共机构而发包机关不像：视为颠倒
	if supplier != nil && supplier.IsPublic && (authority == nil || !authority.IsPublic) {
		r.logger.WithFields(logrus.Fields{
			"supplier":  supplier.Name,
			"authority": nameOf(authority),
		}).Debug("供应商名称像公共机构，交换角色")
		authority, supplier = supplier, authority
	}

	res.Authority = nameOf(authority)
	res.Supplier = nameOf(supplier)
	if authority != nil {
		res.AuthorityAddress = authority.Address
	}
	if supplier != nil {
		res.SupplierICO = supplier.ICO
	}
	return res
}

// pick 优先取显式标注该角色的候选方，否则取该角色得分最高且非零者；显式标注为另一角色的不参与
func pick(cands []*Candidate, role Role) *Candidate {
	for _, c := range cands {
		if c.ExplicitRole == role {
			return c
		}
	}
	var best *Candidate
	for _, c := range cands {
		if c.ExplicitRole == role.Opposite() || c.Score(role) <= 0 {
			continue
		}
		if best == nil || c.Score(role) > best.Score(role) {
			best = c
		}
	}
	return best
}

// breakCollision 同一方同时被选为两种角色（或两方都无法判定）时拆开
func (r *Resolver) breakCollision(cands []*Candidate, collided *Candidate) (authority, supplier *Candidate, degraded bool) {
	if len(cands) < 2 {
		if collided == nil {
			return nil, nil, false
		}
		if collided.IsPublic {
			return collided, nil, false
		}
		return nil, collided, false
	}

	// (a) 供应商得分次高的其他候选方
	if collided != nil {
		var next *Candidate
		for _, c := range cands {
			if c == collided || c.ExplicitRole == RoleAuthority || c.SupplierScore <= 0 {
				continue
			}
			if next == nil || c.SupplierScore > next.SupplierScore {
				next = c
			}
		}
		if next != nil {
			return collided, next, false
		}
	}

	// (b) 公共机构作发包机关，任一非公共机构作供应商
	for _, pub := range cands {
		if !pub.IsPublic {
			continue
		}
		for _, priv := range cands {
			if priv != pub && !priv.IsPublic {
				return pub, priv, false
			}
		}
	}

	// (c) 按名称字典序兜底
	sorted := append([]*Candidate(nil), cands...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	r.logger.WithFields(logrus.Fields{
		"authority":  sorted[0].Name,
		"supplier":   sorted[1].Name,
		"candidates": len(cands),
	}).Warn("合同方角色无法区分，按名称字典序分配")
	return sorted[0], sorted[1], true
}

func other(cands []*Candidate, c *Candidate) *Candidate {
	for _, x := range cands {
		if x != c {
			return x
		}
	}
	return nil
}

func nameOf(c *Candidate) string {
	if c == nil {
		return model.Unspecified
	}
	return c.Name
}
