package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/viper"
)

func isJSON() bool {
	return viper.GetBool("json")
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
