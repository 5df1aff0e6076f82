package synthesis

import "github.com/odvcencio/etymon/pkg/schema"

// ResultSchema is the contract the model must satisfy. It mirrors
// etym.EtymologyResult field for field; anything that fails this schema is
// retried and never cached.
func ResultSchema() schema.Schema {
	stage := stageProperty()
	return schema.ObjectSchema(map[string]schema.Property{
		"word":          schema.StringProperty("the word being explained, lowercase"),
		"pronunciation": schema.StringProperty("IPA or respelled pronunciation"),
		"definition":    schema.StringProperty("concise modern definition"),
		"roots": schema.ArrayProperty("root morphemes composing the word",
			schema.ObjectProperty("one root", map[string]schema.Property{
				"text":    schema.StringProperty("the root as usually cited"),
				"origin":  schema.StringProperty("language of origin"),
				"meaning": schema.StringProperty("core meaning of the root"),
			}, "text")),
		"ancestryGraph": schema.ObjectProperty("the word's ancestry", map[string]schema.Property{
			"branches": schema.ArrayProperty("one branch per root, oldest stage last",
				schema.ObjectProperty("ancestry of one root", map[string]schema.Property{
					"root":   schema.StringProperty("which root this branch traces"),
					"stages": schema.ArrayProperty("stages newest to oldest", stage),
				}, "root", "stages")),
			"convergencePoints": schema.ArrayProperty("stages where branches share an ancestor", stage),
			"mergePoint":        stageProperty(),
			"postMerge":         schema.ArrayProperty("stages after the roots combined, ending at the modern word", stage),
		}, "branches"),
		"lore":        schema.StringProperty("a short narrative of the word's history"),
		"suggestions": schema.ArrayProperty("related words worth exploring, bare words only", schema.StringProperty("a single word")),
		"modernUsage": schema.StringProperty("how the word is used today"),
	}, "word", "definition", "roots", "ancestryGraph")
}

func stageProperty() schema.Property {
	return schema.ObjectProperty("one ancestry stage", map[string]schema.Property{
		"language":      schema.StringProperty("language of this stage"),
		"form":          schema.StringProperty("the word form, with * for reconstructions"),
		"meaning":       schema.StringProperty("meaning at this stage"),
		"reconstructed": schema.BoolProperty("true for unattested forms"),
	}, "language", "form")
}
