package registry

// Person — персона из внешнего реестра.
type Person struct {
	// ID — идентификатор персоны в реестре
	ID           string        `json:"id"`
	GivenName    string        `json:"first_name"`
	FamilyName   string        `json:"surname"`
	Affiliations []Affiliation `json:"affiliations"`
}

// Affiliation — принадлежность персоны к учреждению.
type Affiliation struct {
	// InstitutionID — внешний идентификатор учреждения
	InstitutionID string `json:"institution_id"`
	// UnitID — подразделение внутри учреждения
	UnitID string `json:"unit_id"`
	// Active — действующая ли принадлежность
	Active bool `json:"active"`
}

// ActiveAffiliations возвращает только действующие принадлежности.
func (p *Person) ActiveAffiliations() []Affiliation {
	var active []Affiliation
	for _, a := range p.Affiliations {
		if a.Active {
			active = append(active, a)
		}
	}
	return active
}
