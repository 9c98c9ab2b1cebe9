package resolution

// precedes reports whether a outranks b as the source of an attribute value:
// human confirmation, then confidence, then recency. Equal evidence does not outrank.
func precedes(a, b Observation) bool {
	if a.HumanConfirmed != b.HumanConfirmed {
		return a.HumanConfirmed
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.Timestamp.After(b.Timestamp)
}

// winner returns the index of the observation whose value is used for an attribute,
// or -1 when no observation provides one. Full ties go to the later position.
func winner(obs []Observation, provides func(Observation) bool) int {
	best := -1
	for i, o := range obs {
		if !provides(o) {
			continue
		}
		if best < 0 || !precedes(obs[best], o) {
			best = i
		}
	}
	return best
}

func deriveString(obs []Observation, attr string) string {
	i := winner(obs, func(o Observation) bool {
		_, ok := o.String(attr)
		return ok
	})
	if i < 0 {
		return ""
	}
	v, _ := obs[i].String(attr)
	return v
}

func deriveInt(obs []Observation, attr string) *int {
	i := winner(obs, func(o Observation) bool {
		_, ok := o.Int(attr)
		return ok
	})
	if i < 0 {
		return nil
	}
	v, _ := obs[i].Int(attr)
	return &v
}

// Recompute derives every display attribute from the observation list. Each attribute
// is decided independently, so the display name and the vendor may come from
// different observations.
func (r *InventoryRecord) Recompute() {
	obs := r.Observations

	r.Attributes = Attributes{
		DisplayName: deriveString(obs, AttrName),
		Vendor:      deriveString(obs, AttrVendor),
		Version:     deriveString(obs, AttrVersion),
		Category:    deriveString(obs, AttrCategory),
	}
	if r.Attributes.DisplayName == "" {
		r.Attributes.DisplayName = r.SourceName
	}

	switch r.Type {
	case RecordTypeApplication:
		r.Application = &ApplicationDetails{
			HostingModel: deriveString(obs, AttrHostingModel),
			UserCount:    deriveInt(obs, AttrUserCount),
			LicenseModel: deriveString(obs, AttrLicenseModel),
		}
	case RecordTypeInfrastructure:
		r.Infrastructure = &InfrastructureDetails{
			Environment: deriveString(obs, AttrEnvironment),
			Location:    deriveString(obs, AttrLocation),
			Quantity:    deriveInt(obs, AttrQuantity),
		}
	case RecordTypeOrganizationalRole:
		r.Role = &RoleDetails{
			Department: deriveString(obs, AttrDepartment),
			Headcount:  deriveInt(obs, AttrHeadcount),
			ReportsTo:  deriveString(obs, AttrReportsTo),
		}
	}

	// cost is taken as a unit so amount, currency and status never mix sources
	r.Cost = UnknownCost()
	if i := winner(obs, func(o Observation) bool {
		_, ok := costFrom(o)
		return ok
	}); i >= 0 {
		r.Cost, _ = costFrom(obs[i])
	}
}
