package nwbspec

// EcogNamespace defines the ecog namespace: cortical surface geometry stored
// as faces + vertices triangle meshes.
func EcogNamespace() *NamespaceBuilder {
	surface := &GroupSpec{
		NeurodataTypeDef: "Surface",
		NeurodataTypeInc: "NWBDataInterface",
		Quantity:         QuantityOneOrMore,
		Doc:              "brain cortical surface",
		Datasets: []DatasetSpec{
			{
				Name:  "faces",
				Doc:   "faces for surface, indexes vertices",
				DType: "uint",
				Shape: []*int{AnyDim(), Dim(3)},
				Dims:  []string{"face_number", "vertex_index"},
			},
			{
				Name:  "vertices",
				Doc:   "vertices for surface, points in 3D space",
				DType: "float",
				Shape: []*int{AnyDim(), Dim(3)},
				Dims:  []string{"vertex_number", "xyz"},
			},
		},
	}

	surfaces := &GroupSpec{
		NeurodataTypeDef: "CorticalSurfaces",
		NeurodataTypeInc: "NWBDataInterface",
		Name:             "cortical_surfaces",
		Doc:              "triverts for cortical surfaces",
		Quantity:         QuantityOptional,
		Groups:           []*GroupSpec{surface},
	}

	nb := NewNamespaceBuilder("ecog extensions", "ecog")
	nb.AddSpec(surfaces)
	return nb
}

// MetaNamespace defines the subject metadata namespace: surgeries with virus
// injections, histology, an extended subject type and the optical fiber
// device.
func MetaNamespace() *NamespaceBuilder {
	virusInjection := &GroupSpec{
		NeurodataTypeDef: "VirusInjection",
		NeurodataTypeInc: "NWBDataInterface",
		Quantity:         QuantityZeroOrMore,
		Doc:              "notes about surgery that includes virus injection",
		Datasets: []DatasetSpec{
			{
				Name:  "coordinates",
				Doc:   "(AP, ML, DV) of virus injection",
				DType: "float",
				Shape: []*int{Dim(3)},
			},
		},
		Attributes: []AttributeSpec{
			{Name: "virus", Doc: "type of virus", DType: "text"},
			{Name: "volume", Doc: "volume of injecting in nL", DType: "float"},
			AttributeSpec{Name: "rate", Doc: "rate of injection (nL/s)", DType: "float"}.Optional(),
			AttributeSpec{Name: "scheme", Doc: "scheme of injection", DType: "text"}.Optional(),
		},
	}

	virusInjections := &GroupSpec{
		NeurodataTypeDef: "VirusInjections",
		Name:             "virus_injections",
		Doc:              "stores virus injections",
		Quantity:         QuantityOptional,
		Groups:           []*GroupSpec{virusInjection},
	}

	surgery := &GroupSpec{
		NeurodataTypeDef: "Surgery",
		NeurodataTypeInc: "NWBDataInterface",
		Quantity:         QuantityOneOrMore,
		Doc:              "information about a specific surgery",
		Datasets: []DatasetSpec{
			{
				Name:     "devices",
				Doc:      "links to implanted/explanted devices",
				DType:    ObjectRef("Device"),
				Quantity: QuantityOptional,
			},
		},
		Groups: []*GroupSpec{virusInjections},
		Attributes: []AttributeSpec{
			AttributeSpec{Name: "start_datetime", Doc: "datetime in ISO 8601", DType: "text"}.Optional(),
			AttributeSpec{Name: "end_datetime", Doc: "datetime in ISO 8601", DType: "text"}.Optional(),
			AttributeSpec{Name: "weight", DType: "text",
				Doc: "Weight at time of experiment, at time of surgery and at other important times"}.Optional(),
			AttributeSpec{Name: "notes", Doc: "notes and complications", DType: "text"}.Optional(),
			AttributeSpec{Name: "anesthesia", Doc: "anesthesia", DType: "text"}.Optional(),
			AttributeSpec{Name: "analgesics", Doc: "analgesics", DType: "text"}.Optional(),
			AttributeSpec{Name: "antibiotics", Doc: "antibiotics", DType: "text"}.Optional(),
			AttributeSpec{Name: "target_anatomy", Doc: "target anatomy", DType: "text"}.Optional(),
			AttributeSpec{Name: "room", Doc: "place where the surgery took place", DType: "text"}.Optional(),
			AttributeSpec{Name: "surgery_type", Doc: `"chronic" or "acute"`, DType: "text"}.Optional(),
		},
	}

	surgeries := &GroupSpec{
		NeurodataTypeDef: "Surgeries",
		Name:             "surgeries",
		Doc:              "relevant data for surgeries",
		Quantity:         QuantityOptional,
		Groups:           []*GroupSpec{surgery},
	}

	histology := &GroupSpec{
		NeurodataTypeDef: "Histology",
		Name:             "histology",
		Doc:              "information about histology of subject",
		Quantity:         QuantityOptional,
		Attributes: []AttributeSpec{
			{Name: "file_name", Doc: "filename of histology images", DType: "text"},
			{Name: "file_name_ext", Doc: "filename extension", DType: "text"},
			{Name: "imaging_technique",
				Doc:   "histology imaging technique (e.g. widefield, confocal, etc.)",
				DType: "text"},
			AttributeSpec{Name: "slice_plane", Doc: "[Coronal, Sagital, Transverse, Other]", DType: "text"}.Optional(),
			AttributeSpec{Name: "slice_thickness", Doc: "thickness of slice (um)", DType: "float"}.Optional(),
			AttributeSpec{Name: "location_along_axis", Doc: "Axis orthogal to SlicePlane (mm)", DType: "float"}.Optional(),
			AttributeSpec{Name: "brain_region_target", Doc: "Allen Institute acronym", DType: "text"}.Optional(),
			AttributeSpec{Name: "stainings", Doc: "stainings", DType: "text"}.Optional(),
			AttributeSpec{Name: "light_source", Doc: "wavelength of light source in nm", DType: "float"}.Optional(),
			AttributeSpec{Name: "image_scale", Doc: "scale of image (pixels/100um)", DType: "float"}.Optional(),
			AttributeSpec{Name: "scale_bar", Doc: "size of image scale bar (um)", DType: "float"}.Optional(),
			AttributeSpec{Name: "post_processing", Doc: "[Z-stacked, Stiched]", DType: "text"}.Optional(),
			AttributeSpec{Name: "user", Doc: "person involved", DType: "text"}.Optional(),
			AttributeSpec{Name: "notes", Doc: "anything else", DType: "text"}.Optional(),
		},
	}

	subject := &GroupSpec{
		NeurodataTypeDef: "ExtendedSubject",
		NeurodataTypeInc: "Subject",
		Name:             "subject",
		Doc:              "information about subject",
		Groups:           []*GroupSpec{surgeries, histology},
		Attributes: []AttributeSpec{
			AttributeSpec{Name: "sex", DType: "text",
				Doc: `Sex of subject. Options: "M": male, "F": female, "O": other, "U": unknown`}.Optional(),
			AttributeSpec{Name: "species", Doc: "Species of subject", DType: "text"}.Optional(),
			AttributeSpec{Name: "strain", Doc: "strain of animal", DType: "text"}.Optional(),
			AttributeSpec{Name: "genotype", Doc: "genetic line of animal", DType: "text"}.Optional(),
			AttributeSpec{Name: "date_of_birth", Doc: "in ISO 8601 format", DType: "text"}.Optional(),
			AttributeSpec{Name: "date_of_death", Doc: "in ISO 8601 format", DType: "text"}.Optional(),
			AttributeSpec{Name: "age", Doc: "age of subject. No specific format enforced.", DType: "text"}.Optional(),
			AttributeSpec{Name: "gender", Doc: "Gender of subject if different from sex.", DType: "text"}.Optional(),
			AttributeSpec{Name: "earmark", Doc: "Earmark of subject", DType: "text"}.Optional(),
			AttributeSpec{Name: "weight", DType: "text",
				Doc: "Weight at time of experiment, at time of surgery and at other important times"}.Optional(),
		},
	}

	opticalFiber := &GroupSpec{
		NeurodataTypeDef: "OpticalFiber",
		NeurodataTypeInc: "Device",
		Name:             "OpticalFiber",
		Doc:              "Meta-data about optical fiber",
		Attributes: []AttributeSpec{
			AttributeSpec{Name: "type", Doc: "model", DType: "text"}.Optional(),
			AttributeSpec{Name: "core_diameter", Doc: "in um", DType: "float"}.Optional(),
			AttributeSpec{Name: "outer_diameter", Doc: "in um", DType: "float"}.Optional(),
			{Name: "microdrive",
				Doc:   "whether a microdrive was used (0: not used, 1: used)",
				DType: "uint"},
			AttributeSpec{Name: "microdrive_lead", Doc: "um/turn", DType: "float"}.Optional(),
			AttributeSpec{Name: "microdrive_id", Doc: "id of microdrive", DType: "int"}.Optional(),
		},
	}

	nb := NewNamespaceBuilder("subject metadata extensions", "ecog_meta")
	nb.AddSpec(subject)
	nb.AddSpec(opticalFiber)
	return nb
}
