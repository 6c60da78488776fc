package yaml

import (
	"fmt"
	"io"
	"os"

	"github.com/Victor-armando18/service-pricing/internal/domain"
	"gopkg.in/yaml.v3"
)

func LoadRulePack(path string) (domain.RulePack, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.RulePack{}, err
	}
	defer f.Close()
	return DecodeRulePack(f)
}

// DecodeRulePack lê um RulePack em YAML e rejeita campos desconhecidos, para
// que erros de escrita apareçam no carregamento.
func DecodeRulePack(r io.Reader) (domain.RulePack, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var pack domain.RulePack
	if err := dec.Decode(&pack); err != nil {
		if err == io.EOF {
			return domain.RulePack{}, fmt.Errorf("empty rule pack")
		}
		return domain.RulePack{}, err
	}
	return pack, nil
}
